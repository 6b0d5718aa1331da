package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/juno-r1/sophia-sub000/fault"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// diagnostics prints engine errors to a writer. Fatal kinds abort the task;
// the rest unwind the current frame.
type diagnostics struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	fatal map[fault.Kind]bool
}

func newDiagnostics(w io.Writer, color bool, fatal ...fault.Kind) *diagnostics {
	d := &diagnostics{w: w, color: color, fatal: make(map[fault.Kind]bool, len(fatal))}
	for _, k := range fatal {
		d.fatal[k] = true
	}
	return d
}

func (d *diagnostics) Handle(e *fault.Error) fault.Action {
	action := fault.Unwind
	if d.fatal[e.Kind] {
		action = fault.Abort
	}

	msg := e.Error()
	if d.color {
		c := ansiYellow
		if action == fault.Abort {
			c = ansiRed
		}
		kind := string(e.Kind)
		msg = c + kind + ansiReset + strings.TrimPrefix(msg, kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "%s: %s\n", e.Task, msg)
	return action
}
