package vm

import (
	"context"
	"errors"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Fetch/decode loop
// ---------------------------------------------------------------------------

// run executes until the frame current at entry finishes. Frames entered
// by calls along the way return into their callers without leaving the
// loop, so run is re-entrant: nested invocations call it again with a new
// frame on top.
func (t *Task) run(ctx context.Context) (Slot, error) {
	entry := t.caller
	for {
		if t.path == 0 {
			if t.caller == entry {
				return t.ret, nil
			}
			if err := t.leave(ctx); err != nil {
				if err = t.unwind(err, entry); err != nil {
					return Slot{}, err
				}
			}
			continue
		}
		if t.path >= len(t.instructions) {
			t.finish(Slot{Value: nil, Type: types.NoneType})
			continue
		}
		t.op = t.instructions[t.path]
		t.path++
		err := t.step(ctx)
		if t.abort != nil {
			err, t.abort = t.abort, nil
		}
		if err != nil {
			if err = t.unwind(err, entry); err != nil {
				return Slot{}, err
			}
		}
	}
}

// step executes t.op.
func (t *Task) step(ctx context.Context) error {
	switch t.op.Name {
	case code.Start, code.End, code.Head:
		return nil
	case code.Else:
		// reached by falling out of the preceding block
		t.skip(t.path - 1)
		return nil
	case code.Event:
		if t.mode == modeStart {
			t.suspend()
		}
		return nil
	case code.Yield:
		if t.mode == modeResume {
			return t.yield()
		}
		return nil
	}
	if t.op.IsReserved() {
		return t.reserved(ctx)
	}
	return t.call(ctx)
}

// finish ends the current frame with ret.
func (t *Task) finish(ret Slot) {
	if t.mode == modeResume {
		t.handler.save(t.registers, t.handler.entry)
	}
	t.ret = ret
	t.path = 0
}

// leave returns from a finished callee into its caller and writes the
// result to the call's destination register.
func (t *Task) leave(ctx context.Context) error {
	ret, final, hints := t.ret, t.final, t.refine
	if t.mode != modeStart && constrained(final) && !types.Is(t.env(ctx), ret.Value, final) {
		if err := t.abort; err != nil {
			t.abort = nil
			return err
		}
		return fault.New(fault.Cast, ret.Value, final)
	}
	t.restore(t.caller)
	t.writeBack(t.op.Register, ret.Value, final, hints)
	return nil
}

func constrained(final *types.Typedef) bool {
	return final != nil && final != types.Discard && !final.IsOpen()
}

// writeBack stores a call result. Discard suppresses the write; an open
// final type is resolved from the value and the refinement hints.
func (t *Task) writeBack(dest string, v types.Value, final *types.Typedef, hints []*types.Property) {
	defer func() { t.refine = nil }()
	if dest == "" || final == types.Discard {
		return
	}
	if final == nil || final.IsOpen() {
		t.registers[dest] = Slot{Value: v, Type: types.Infer(v).With(hints...)}
		return
	}
	t.registers[dest] = Slot{Value: v, Type: final}
}

// set writes a value with its inferred type.
func (t *Task) set(dest string, v types.Value) {
	if dest != "" {
		t.registers[dest] = Slot{Value: v, Type: types.Infer(v)}
	}
}

// ---------------------------------------------------------------------------
// Failure handling
// ---------------------------------------------------------------------------

func asFault(err error) *fault.Error {
	var e *fault.Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// report hands err to the error handler unless it has already been
// reported, and returns it as a fault.
func (t *Task) report(err error) *fault.Error {
	e := fault.From(err)
	if e.Op == "" {
		e.Op = t.op.Name
	}
	if e.Task == "" {
		e.Task = t.Name
	}
	if reported, _ := e.Reported(); !reported {
		e.MarkReported(t.faults.Handle(e))
	}
	return e
}

// unwind applies the handler's decision for err. It returns nil when the
// failing frame was abandoned and execution can continue in its caller,
// or the error when the task (or the nested invocation started at entry)
// must stop.
func (t *Task) unwind(err error, entry *Frame) error {
	e := t.report(err)
	if _, fatal := e.Reported(); fatal || t.caller == entry {
		return e
	}
	t.log.Debugf("task %s: unwinding %s", t.Name, e.Kind)
	t.restore(t.caller)
	if dest := t.op.Register; dest != "" {
		t.registers[dest] = Slot{Value: e, Type: types.Any}
	}
	t.refine = nil
	return nil
}
