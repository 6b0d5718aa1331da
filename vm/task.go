// Package vm implements the execution engine: a register-based task that
// runs a flat instruction stream, resolving every call through the
// dispatch tree and refining register types as values flow.
package vm

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// Slot is the content of a register: a value and its known type.
type Slot struct {
	Value types.Value
	Type  *types.Typedef
}

// mode tells the loop how pseudo-instructions of event bodies behave in
// the current frame.
type mode int

const (
	modeCall   mode = iota
	modeStart       // running an event body up to its EVENT marker
	modeResume      // running an event body for one message
)

// ---------------------------------------------------------------------------
// Task: a single-threaded instruction interpreter
// ---------------------------------------------------------------------------

// Task executes one program. A task is not safe for concurrent use; the
// supervisor gives every concurrent routine its own task via Spawn.
type Task struct {
	Name string
	ID   uuid.UUID

	// current frame
	registers    map[string]Slot
	instructions []code.Instruction
	path         int
	op           code.Instruction
	caller       *Frame
	final        *types.Typedef
	mode         mode
	method       *dispatch.Method
	handler      *Handler
	refine       []*types.Property
	ret          Slot

	// fatal error raised where no error can be returned
	abort error

	super   Supervisor
	faults  fault.Handler
	compile func(string) ([]code.Instruction, error)
	out     io.Writer
	log     commonlog.Logger
}

// Option configures a task.
type Option func(*Task)

// WithSupervisor sets the supervisor serving futures, links and messages.
func WithSupervisor(s Supervisor) Option {
	return func(t *Task) { t.super = s }
}

// WithHandler sets the error handler. The default logs every error and
// unwinds.
func WithHandler(h fault.Handler) Option {
	return func(t *Task) { t.faults = h }
}

// WithOutput sets the writer used by print.
func WithOutput(w io.Writer) Option {
	return func(t *Task) { t.out = w }
}

// WithCompiler sets the compiler used by .meta.
func WithCompiler(fn func(string) ([]code.Instruction, error)) Option {
	return func(t *Task) { t.compile = fn }
}

// WithID sets the task identifier.
func WithID(id uuid.UUID) Option {
	return func(t *Task) { t.ID = id }
}

// New creates a task for prog. Its registers are the program namespace
// overlaid on the standard namespace.
func New(prog *code.Program, opts ...Option) (*Task, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	t := &Task{
		Name:         prog.Name(),
		ID:           uuid.New(),
		registers:    make(map[string]Slot, len(prog.Namespace)),
		instructions: code.Strip(prog.Instructions),
		path:         1,
		final:        types.Any,
		compile:      code.ParseInstructions,
		out:          os.Stdout,
		log:          commonlog.GetLogger("sophia.vm"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.faults == nil {
		t.faults = fault.NewLogHandler()
	}
	for _, b := range prog.Namespace {
		v := b.Value.Value()
		typ := types.Infer(v)
		if b.Type != "" {
			declared, err := types.Read(b.Type)
			if err != nil {
				return nil, fmt.Errorf("vm: binding %s: %w", b.Name, err)
			}
			if !types.Is(nil, v, declared) {
				return nil, fmt.Errorf("vm: binding %s: %s is not %s", b.Name, types.Format(v), declared)
			}
			typ = declared
		}
		t.registers[b.Name] = Slot{Value: v, Type: typ}
	}
	return t, nil
}

// Spawn creates a child task sharing t's configuration, with a copy of its
// registers and no instructions of its own.
func (t *Task) Spawn(name string, id uuid.UUID) *Task {
	return &Task{
		Name:      name,
		ID:        id,
		registers: maps.Clone(t.registers),
		final:     types.Any,
		super:     t.super,
		faults:    t.faults,
		compile:   t.compile,
		out:       t.out,
		log:       t.log,
	}
}

// Run executes the program from its first instruction and returns the
// value of its final .return, or null.
func (t *Task) Run(ctx context.Context) (v types.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorf("task %s: panic at %s: %v", t.Name, t.op, r)
			v, err = nil, fmt.Errorf("vm: panic in task %s at %s: %v", t.Name, t.op, r)
		}
	}()
	t.log.Debugf("task %s (%s) started", t.Name, t.ID)
	ret, err := t.run(ctx)
	if err != nil {
		t.log.Debugf("task %s aborted: %s", t.Name, err)
		return nil, err
	}
	t.log.Debugf("task %s returned %s", t.Name, types.Format(ret.Value))
	return ret.Value, nil
}

// Invoke calls fn (a funcdef, eventdef or typedef) with args in a nested
// frame, exactly as a call instruction would. Invoking an eventdef runs its
// setup and returns the *Handler.
func (t *Task) Invoke(ctx context.Context, fn types.Value, args ...types.Value) (types.Value, error) {
	regs := maps.Clone(t.registers)
	regs["$f"] = Slot{Value: fn, Type: types.Infer(fn)}
	in := code.Instruction{Name: "$f", Register: "$r"}
	for i, a := range args {
		name := fmt.Sprintf("$%d", i)
		regs[name] = Slot{Value: a, Type: types.Infer(a)}
		in.Args = append(in.Args, name)
	}
	body := []code.Instruction{
		{Name: code.Head, Labels: []string{t.Name}},
		in,
		{Name: ".return", Args: []string{"$r"}},
	}
	ret, err := t.nested(ctx, &Frame{registers: regs, instructions: body, path: 1, final: types.Any})
	if err != nil {
		return nil, err
	}
	return ret.Value, nil
}

// Resume delivers msg to the event handler h in a nested frame and returns
// the handler's reply. Deliveries to one handler are serialised, so h may
// be shared with other tasks.
func (t *Task) Resume(ctx context.Context, h *Handler, msg types.Value) (types.Value, error) {
	ret, err := t.deliver(ctx, h, msg)
	if err != nil {
		return nil, t.report(err)
	}
	return ret.Value, nil
}

// Get returns the register name, looking through to the standard
// namespace.
func (t *Task) Get(name string) (Slot, bool) {
	if s, ok := t.registers[name]; ok {
		return s, true
	}
	s, ok := standard()[name]
	return s, ok
}

// Set binds a register of the current frame.
func (t *Task) Set(name string, v types.Value, typ *types.Typedef) {
	if typ == nil {
		typ = types.Infer(v)
	}
	t.registers[name] = Slot{Value: v, Type: typ}
}

// Exports returns the task's public registers as a record: every register
// the program bound except constants, temporaries and reserved names.
func (t *Task) Exports() *types.Record {
	names := slices.Sorted(maps.Keys(t.registers))
	r := types.NewRecord()
	for _, name := range names {
		if strings.HasPrefix(name, "&") || strings.HasPrefix(name, "$") || reserved(name) {
			continue
		}
		r = r.With(name, t.registers[name].Value)
	}
	return r
}

// reserved reports whether name may not be the destination of .bind.
func reserved(name string) bool {
	switch name {
	case "null", "true", "false":
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "&")
}
