package vm

import (
	"context"

	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// lookup reads a register of the current frame or the standard namespace.
func (t *Task) lookup(name string) (Slot, error) {
	if s, ok := t.registers[name]; ok {
		return s, nil
	}
	if s, ok := standard()[name]; ok {
		return s, nil
	}
	return Slot{}, fault.New(fault.Find, name)
}

// gather reads the argument registers of t.op.
func (t *Task) gather() ([]types.Value, []*types.Typedef, error) {
	args := make([]types.Value, len(t.op.Args))
	sig := make([]*types.Typedef, len(t.op.Args))
	for i, name := range t.op.Args {
		s, err := t.lookup(name)
		if err != nil {
			return nil, nil, err
		}
		args[i], sig[i] = s.Value, s.Type
	}
	return args, sig, nil
}

// call executes a non-reserved instruction: the register named by the
// instruction holds the function, event or type being called.
func (t *Task) call(ctx context.Context) error {
	callee, err := t.lookup(t.op.Name)
	if err != nil {
		return err
	}
	args, sig, err := t.gather()
	if err != nil {
		return err
	}
	switch fn := callee.Value.(type) {
	case *dispatch.Eventdef:
		m, err := fn.Dispatch(sig)
		if err != nil {
			return err
		}
		f := t.callFrame(m, args, sig)
		f.mode, f.final = modeStart, types.Any
		t.enter(f)
		return nil
	case *dispatch.Funcdef:
		m, err := fn.Dispatch(sig)
		if err != nil {
			return err
		}
		if m.IsNative() {
			v, err := m.Native(t.env(ctx), args)
			if err != nil {
				return err
			}
			t.writeBack(t.op.Register, v, m.Final, nil)
			return nil
		}
		t.enter(t.callFrame(m, args, sig))
		return nil
	case *types.Typedef:
		return t.construct(ctx, fn, args)
	}
	return fault.New(fault.Dispatch, t.op.Name, callee.Value)
}

// construct calls a type: with no argument it instantiates the prototype,
// with one it casts the argument.
func (t *Task) construct(ctx context.Context, td *types.Typedef, args []types.Value) error {
	switch len(args) {
	case 0:
		return t.instantiate(td)
	case 1:
		if !types.Is(t.env(ctx), args[0], td) {
			return fault.New(fault.Cast, args[0], td)
		}
		t.writeBack(t.op.Register, args[0], td, nil)
		return nil
	}
	return fault.New(fault.Dispatch, t.op.Name, len(args))
}

func (t *Task) instantiate(td *types.Typedef) error {
	proto, ok := td.Prototype()
	if !ok {
		return fault.New(fault.Proto, td)
	}
	t.writeBack(t.op.Register, proto, td, nil)
	return nil
}
