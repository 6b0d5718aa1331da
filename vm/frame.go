package vm

import (
	"context"
	"io"
	"maps"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Frame: a suspended caller
// ---------------------------------------------------------------------------

// Frame is a snapshot of a task's execution state, taken when a call
// enters a new frame and restored when it returns.
type Frame struct {
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
}

func (t *Task) save() *Frame {
	return &Frame{
		registers:    t.registers,
		instructions: t.instructions,
		path:         t.path,
		op:           t.op,
		caller:       t.caller,
		final:        t.final,
		mode:         t.mode,
		method:       t.method,
		handler:      t.handler,
		refine:       t.refine,
	}
}

func (t *Task) restore(f *Frame) {
	t.registers = f.registers
	t.instructions = f.instructions
	t.path = f.path
	t.op = f.op
	t.caller = f.caller
	t.final = f.final
	t.mode = f.mode
	t.method = f.method
	t.handler = f.handler
	t.refine = f.refine
}

// enter suspends the current frame and makes f current. f.caller is set to
// the suspended frame.
func (t *Task) enter(f *Frame) {
	f.caller = t.save()
	t.restore(f)
	t.op = code.Instruction{}
	t.ret = Slot{Value: nil, Type: types.NoneType}
}

// nested runs f to completion on top of the current frame and restores
// the current frame afterwards, whatever the outcome.
func (t *Task) nested(ctx context.Context, f *Frame) (Slot, error) {
	t.enter(f)
	saved := t.caller
	defer t.restore(saved)
	return t.run(ctx)
}

// callFrame builds the frame for a user method. The callee sees a copy of
// the caller's registers with the parameters bound to the arguments and
// their actual types.
func (t *Task) callFrame(m *dispatch.Method, args []types.Value, sig []*types.Typedef) *Frame {
	regs := maps.Clone(t.registers)
	for i, p := range m.Params {
		regs[p] = Slot{Value: args[i], Type: sig[i]}
	}
	return &Frame{
		registers:    regs,
		instructions: m.Routine.Instructions,
		path:         1,
		final:        m.Final,
		mode:         modeCall,
		method:       m,
	}
}

// ---------------------------------------------------------------------------
// env: the task as seen by natives and type checks
// ---------------------------------------------------------------------------

type env struct {
	t   *Task
	ctx context.Context
}

func (t *Task) env(ctx context.Context) env {
	return env{t: t, ctx: ctx}
}

func (e env) Output() io.Writer {
	return e.t.out
}

// CheckRoutine runs the body of a user property with the value bound to
// its parameter. The property holds if the body returns true.
func (e env) CheckRoutine(p *types.Property, v types.Value) bool {
	r := p.Routine
	if r.Empty() {
		return true
	}
	regs := maps.Clone(e.t.registers)
	if len(r.Params) > 0 {
		regs[r.Params[0]] = Slot{Value: v, Type: types.Infer(v)}
	}
	ret, err := e.t.nested(e.ctx, &Frame{registers: regs, instructions: r.Instructions, path: 1, final: types.Any})
	if err != nil {
		if fe := asFault(err); fe != nil {
			if _, fatal := fe.Reported(); fatal {
				e.t.abort = err
			}
		}
		return false
	}
	ok, isBool := ret.Value.(bool)
	if !isBool {
		e.t.log.Debugf("type %s: check returned %s, not a boolean", p.Name, types.Format(ret.Value))
	}
	return isBool && ok
}
