// Sophia CLI - runs, assembles and stores programs for the sophia engine
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/manifest"
	"github.com/juno-r1/sophia-sub000/store"
	"github.com/juno-r1/sophia-sub000/supervisor"
	"github.com/juno-r1/sophia-sub000/types"
	"github.com/juno-r1/sophia-sub000/vm"
)

// searchPaths collects repeated -I flags.
type searchPaths []string

func (p *searchPaths) String() string     { return strings.Join(*p, ",") }
func (p *searchPaths) Set(s string) error { *p = append(*p, s); return nil }

// options are the global flags merged with sophia.toml.
type options struct {
	verbosity int
	dbPath    string
	paths     []string
	color     bool
	fatal     []fault.Kind
	entry     string
}

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors only)")
	configDir := flag.String("config", "", "Directory containing sophia.toml (default: search upwards from the working directory)")
	dbPath := flag.String("db", "", "Module store database (default: $SOPHIA_STORE or ~/.sophia/modules.db)")
	noColor := flag.Bool("no-color", false, "Disable coloured diagnostics")
	var includes searchPaths
	flag.Var(&includes, "I", "Module and stream search path (repeatable)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sophia [options] [command] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run <file>              Run a program (.sasm assembly or .sbc image); the default\n")
		fmt.Fprintf(os.Stderr, "  asm <in.sasm> <out.sbc> Assemble a program into an image\n")
		fmt.Fprintf(os.Stderr, "  dump <file>             Print a program as YAML\n")
		fmt.Fprintf(os.Stderr, "  store put <name> <file> Store a module\n")
		fmt.Fprintf(os.Stderr, "  store get <name>        Print a stored module as assembly\n")
		fmt.Fprintf(os.Stderr, "  store list              List stored modules\n")
		fmt.Fprintf(os.Stderr, "  store rm <name>         Delete a stored module\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	opts, err := loadOptions(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity > 0 {
		opts.verbosity = *verbosity
	}
	if *dbPath != "" {
		opts.dbPath = *dbPath
	}
	opts.paths = append([]string(includes), opts.paths...)
	opts.color = !*noColor && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))

	commonlog.Configure(opts.verbosity, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := flag.Args()
	cmd := "run"
	if len(args) > 0 {
		switch args[0] {
		case "run", "asm", "dump", "store":
			cmd, args = args[0], args[1:]
		}
	}

	switch cmd {
	case "run":
		err = runCommand(ctx, opts, args)
	case "asm":
		err = asmCommand(args)
	case "dump":
		err = dumpCommand(os.Stdout, args)
	case "store":
		err = storeCommand(ctx, os.Stdout, opts, args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadOptions reads sophia.toml from dir, or searches upwards from the
// working directory when dir is empty.
func loadOptions(dir string) (*options, error) {
	var m *manifest.Manifest
	var err error
	if dir != "" {
		m, err = manifest.Load(dir)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	opts := &options{}
	if m != nil {
		opts.verbosity = m.Run.Verbosity
		opts.dbPath = m.StorePath()
		opts.paths = m.SearchPaths()
		opts.fatal = m.FatalKinds()
		opts.entry = m.EntryPath()
	}
	return opts, nil
}

// loadProgram reads an image (.sbc) or assembly text (anything else).
func loadProgram(path string) (*code.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == supervisor.ImageExt {
		prog, err := code.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil
	}
	prog, err := code.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func runCommand(ctx context.Context, opts *options, args []string) error {
	path := opts.entry
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		flag.Usage()
		return fmt.Errorf("no program given")
	}
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}

	supOpts := []supervisor.Option{
		supervisor.WithPaths(append(opts.paths, filepath.Dir(path))...),
		supervisor.WithTaskOptions(vm.WithHandler(newDiagnostics(os.Stderr, opts.color, opts.fatal...))),
	}
	// linking consults the store before the search paths
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()
	supOpts = append(supOpts, supervisor.WithModules(st))

	sup := supervisor.New(supOpts...)
	defer sup.Close()

	v, err := sup.Run(ctx, prog)
	if err != nil {
		return err
	}
	if v != nil {
		fmt.Println(types.Format(v))
	}
	return nil
}

func asmCommand(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: sophia asm <in.sasm> <out.sbc>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	if err := prog.Validate(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	data, err := code.Marshal(prog)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], data, 0o644)
}

func openStore(opts *options) (*store.Store, error) {
	path := opts.dbPath
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}
