package vm

import (
	"context"

	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Supervisor operations
// ---------------------------------------------------------------------------

// opFuture starts a routine as a concurrent task and yields its reference.
func (t *Task) opFuture(ctx context.Context) error {
	args, _, err := t.gather()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fault.New(fault.Dispatch, t.op.Name, 0)
	}
	switch args[0].(type) {
	case *dispatch.Funcdef, *dispatch.Eventdef:
	default:
		return fault.New(fault.Type, args[0], types.FunctionType)
	}
	ref, err := t.request(ctx, OpFuture, args...)
	if err != nil {
		return err
	}
	t.set(t.op.Register, ref)
	return nil
}

// opSend delivers a message. Handlers owned by this task process it
// synchronously in a new frame; references go through the supervisor.
func (t *Task) opSend(ctx context.Context) error {
	target, err := t.arg(0)
	if err != nil {
		return err
	}
	msg, err := t.arg(1)
	if err != nil {
		return err
	}
	switch x := target.Value.(type) {
	case *Handler:
		return t.send(ctx, x, msg.Value)
	case *Reference:
		reply, err := t.request(ctx, OpSend, x, msg.Value)
		if err != nil {
			return err
		}
		t.set(t.op.Register, reply)
		return nil
	}
	return fault.New(fault.Type, target.Value, types.FutureType)
}

func (t *Task) opReceive(ctx context.Context) error {
	msg, err := t.request(ctx, OpReceive)
	if err != nil {
		return err
	}
	t.set(t.op.Register, msg)
	return nil
}

func (t *Task) opAwait(ctx context.Context) error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	ref, ok := s.Value.(*Reference)
	if !ok {
		return fault.New(fault.Type, s.Value, types.FutureType)
	}
	v, err := t.request(ctx, OpResolve, ref)
	if err != nil {
		return err
	}
	t.set(t.op.Register, v)
	return nil
}

// opNamed serves .link and .stream, whose only argument is a name.
func (t *Task) opNamed(ctx context.Context, op Op) error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	name, ok := s.Value.(string)
	if !ok {
		return fault.New(fault.Type, s.Value, types.StringType)
	}
	v, err := t.request(ctx, op, name)
	if err != nil {
		return err
	}
	t.set(t.op.Register, v)
	return nil
}
