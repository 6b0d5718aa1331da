package vm

import (
	"slices"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// definitionName returns the destination register of a definition, which
// is also the name of the defined value.
func (t *Task) definitionName() (string, error) {
	name := t.op.Register
	if name == "" || reserved(name) {
		return "", fault.New(fault.Bind, name)
	}
	return name, nil
}

// capture takes the body block that follows the current definition and
// moves execution past it. A definition without a block has an empty body.
func (t *Task) capture(name string, params []string) *code.Routine {
	r, next, ok := code.Capture(t.instructions, t.path-1, name, params)
	if !ok {
		return &code.Routine{Name: name, Params: slices.Clone(params), Instructions: []code.Instruction{t.op}}
	}
	t.path = next
	return r
}

// typeArgs reads argument registers [from, to) as typedefs.
func (t *Task) typeArgs(from, to int) ([]*types.Typedef, error) {
	out := make([]*types.Typedef, 0, to-from)
	for i := from; i < to; i++ {
		td, err := t.typeArg(i)
		if err != nil {
			return nil, err
		}
		out = append(out, td)
	}
	return out, nil
}

// defineFunction executes
//
//	f := .function final T1 T2 ; p1 p2
//
// followed by the body block. An existing funcdef in f gains an overload.
func (t *Task) defineFunction() error {
	name, err := t.definitionName()
	if err != nil {
		return err
	}
	if len(t.op.Args) == 0 {
		return fault.New(fault.Dispatch, t.op.Name, 0)
	}
	final, err := t.typeArg(0)
	if err != nil {
		return err
	}
	sig, err := t.typeArgs(1, len(t.op.Args))
	if err != nil {
		return err
	}
	params := t.op.Labels
	if len(params) != len(sig) {
		return fault.New(fault.Dispatch, name, len(params), len(sig))
	}
	m := &dispatch.Method{
		Name:      name,
		Params:    slices.Clone(params),
		Signature: sig,
		Final:     final,
		Routine:   t.capture(name, params),
	}
	var f *dispatch.Funcdef
	if s, err := t.lookup(name); err == nil {
		if prev, ok := s.Value.(*dispatch.Funcdef); ok {
			f = prev.Extend(m)
		}
	}
	if f == nil {
		f = dispatch.NewFuncdef(name, m)
	}
	t.registers[name] = Slot{Value: f, Type: types.FunctionType}
	return nil
}

// defineEvent executes
//
//	e := .event final T1 M ; p1 msg
//
// where the last type and label describe the message parameter.
func (t *Task) defineEvent() error {
	name, err := t.definitionName()
	if err != nil {
		return err
	}
	n := len(t.op.Args)
	if n < 2 || len(t.op.Labels) != n-1 {
		return fault.New(fault.Dispatch, t.op.Name, n, len(t.op.Labels))
	}
	final, err := t.typeArg(0)
	if err != nil {
		return err
	}
	sig, err := t.typeArgs(1, n-1)
	if err != nil {
		return err
	}
	msgType, err := t.typeArg(n - 1)
	if err != nil {
		return err
	}
	params := t.op.Labels[:n-2]
	message := t.op.Labels[n-2]
	m := &dispatch.Method{
		Name:        name,
		Params:      slices.Clone(params),
		Signature:   sig,
		Final:       final,
		Routine:     t.capture(name, t.op.Labels),
		Message:     message,
		MessageType: msgType,
	}
	var e *dispatch.Eventdef
	if s, err := t.lookup(name); err == nil {
		if prev, ok := s.Value.(*dispatch.Eventdef); ok {
			e = prev.Extend(m)
		}
	}
	if e == nil {
		e = dispatch.NewEventdef(name, m)
	}
	t.registers[name] = Slot{Value: e, Type: types.EventType}
	return nil
}

// defineType executes
//
//	T := .type super [prototype] ; param
//
// followed by the check body. The new type is the supertype plus a user
// property checked by the body; it inherits the supertype's prototype
// unless one is given.
func (t *Task) defineType() error {
	name, err := t.definitionName()
	if err != nil {
		return err
	}
	super, err := t.typeArg(0)
	if err != nil {
		return err
	}
	var params []string
	if p := t.op.Label(0); p != "" {
		params = []string{p}
	}
	var proto *Slot
	if len(t.op.Args) > 1 {
		s, err := t.arg(1)
		if err != nil {
			return err
		}
		proto = &s
	}
	prop := types.NewUser(name, super, t.capture(name, params))
	td := super.With(prop).Named(name)
	if proto != nil {
		td = td.WithPrototype(proto.Value)
	}
	t.registers[name] = Slot{Value: td, Type: types.TypeType}
	return nil
}

// opMeta compiles a string at run time and splices the instructions after
// the current one.
func (t *Task) opMeta() error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	src, ok := s.Value.(string)
	if !ok {
		return fault.New(fault.Type, s.Value, types.StringType)
	}
	ins, err := t.compile(src)
	if err != nil {
		return fault.New(fault.Meta, err)
	}
	// routine bodies share their instruction slice; splice into a copy
	t.instructions = slices.Concat(t.instructions[:t.path], ins, t.instructions[t.path:])
	return nil
}
