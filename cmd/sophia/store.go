package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/juno-r1/sophia-sub000/code"
)

func storeCommand(ctx context.Context, w io.Writer, opts *options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sophia store put|get|list|rm")
	}
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			return fmt.Errorf("usage: sophia store put <name> <file>")
		}
		prog, err := loadProgram(args[2])
		if err != nil {
			return err
		}
		if err := prog.Validate(); err != nil {
			return fmt.Errorf("%s: %w", args[2], err)
		}
		return st.Put(ctx, args[1], prog)

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: sophia store get <name>")
		}
		prog, err := st.Get(ctx, args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}
		_, err = io.WriteString(w, code.Format(prog))
		return err

	case "list":
		entries, err := st.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.Size, e.Updated.Format(time.RFC3339))
		}
		return tw.Flush()

	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: sophia store rm <name>")
		}
		if err := st.Delete(ctx, args[1]); err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}
		return nil
	}
	return fmt.Errorf("unknown store command %q", args[0])
}
