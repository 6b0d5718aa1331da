package vm

import (
	"context"
	"math"
	"slices"

	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Reserved operations
// ---------------------------------------------------------------------------

// reserved executes an internal operation. Their names begin with a dot
// and never name a register.
func (t *Task) reserved(ctx context.Context) error {
	switch t.op.Name {
	// control flow
	case ".if":
		return t.opIf()
	case ".while":
		return t.opWhile()
	case ".loop", ".continue":
		return t.continueLoop()
	case ".break":
		return t.breakLoop()
	case ".return":
		return t.opReturn()

	// values
	case ".bind":
		return t.opBind()
	case ".list":
		return t.opList()
	case ".record":
		return t.opRecord()
	case ".slice":
		return t.opSlice()
	case ".iterator":
		return t.opIterator()
	case ".next":
		return t.opNext()

	// types
	case ".check":
		return t.opCheck(ctx, true)
	case ".safe":
		return t.opCheck(ctx, false)
	case ".new":
		return t.opNew()

	// definitions
	case ".function":
		return t.defineFunction()
	case ".event":
		return t.defineEvent()
	case ".type":
		return t.defineType()
	case ".meta":
		return t.opMeta()

	// supervisor
	case ".future":
		return t.opFuture(ctx)
	case ".send":
		return t.opSend(ctx)
	case ".receive":
		return t.opReceive(ctx)
	case ".await":
		return t.opAwait(ctx)
	case ".link":
		return t.opNamed(ctx, OpLink)
	case ".stream":
		return t.opNamed(ctx, OpStream)
	}
	return fault.New(fault.Dispatch, t.op.Name)
}

// arg reads argument register i of t.op.
func (t *Task) arg(i int) (Slot, error) {
	if i >= len(t.op.Args) {
		return Slot{}, fault.New(fault.Dispatch, t.op.Name, len(t.op.Args))
	}
	return t.lookup(t.op.Args[i])
}

func (t *Task) boolArg(i int) (bool, error) {
	s, err := t.arg(i)
	if err != nil {
		return false, err
	}
	b, ok := s.Value.(bool)
	if !ok {
		return false, fault.New(fault.Type, s.Value, types.BooleanType)
	}
	return b, nil
}

func (t *Task) typeArg(i int) (*types.Typedef, error) {
	s, err := t.arg(i)
	if err != nil {
		return nil, err
	}
	td, ok := s.Value.(*types.Typedef)
	if !ok {
		return nil, fault.New(fault.Type, s.Value, types.TypeType)
	}
	return td, nil
}

func (t *Task) numberArg(i int) (float64, error) {
	s, err := t.arg(i)
	if err != nil {
		return 0, err
	}
	n, ok := s.Value.(float64)
	if !ok {
		return 0, fault.New(fault.Type, s.Value, types.NumberType)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (t *Task) opIf() error {
	c, err := t.boolArg(0)
	if err != nil {
		return err
	}
	if !c {
		t.branch()
	}
	return nil
}

func (t *Task) opWhile() error {
	c, err := t.boolArg(0)
	if err != nil {
		return err
	}
	if !c {
		return t.breakLoop()
	}
	return nil
}

func (t *Task) opReturn() error {
	ret := Slot{Value: nil, Type: types.NoneType}
	if len(t.op.Args) > 0 {
		s, err := t.arg(0)
		if err != nil {
			return err
		}
		ret = s
	}
	t.finish(ret)
	t.refine = ret.Type.Properties()
	return nil
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func (t *Task) opBind() error {
	dest := t.op.Register
	if reserved(dest) {
		return fault.New(fault.Bind, dest)
	}
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	if dest != "" {
		t.registers[dest] = s
	}
	return nil
}

func (t *Task) opList() error {
	args, _, err := t.gather()
	if err != nil {
		return err
	}
	t.set(t.op.Register, args)
	return nil
}

func (t *Task) opRecord() error {
	args, _, err := t.gather()
	if err != nil {
		return err
	}
	if len(args)%2 != 0 {
		return fault.New(fault.Dispatch, t.op.Name, len(args))
	}
	r := types.NewRecord()
	for i := 0; i < len(args); i += 2 {
		if !types.Hashable(args[i]) {
			return fault.New(fault.Type, args[i])
		}
		r = r.With(args[i], args[i+1])
	}
	t.set(t.op.Register, r)
	return nil
}

func (t *Task) opSlice() error {
	var bounds [3]float64
	bounds[2] = 1
	if n := len(t.op.Args); n < 2 || n > 3 {
		return fault.New(fault.Dispatch, t.op.Name, n)
	}
	for i := range t.op.Args {
		n, err := t.numberArg(i)
		if err != nil {
			return err
		}
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return fault.New(fault.Type, n, types.NumberType)
		}
		bounds[i] = n
	}
	t.set(t.op.Register, &types.Slice{Start: bounds[0], Stop: bounds[1], Step: bounds[2]})
	return nil
}

func (t *Task) opIterator() error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	it, ok := types.NewIterator(s.Value)
	if !ok {
		return fault.New(fault.Type, s.Value, types.SequenceType)
	}
	if t.op.Register != "" {
		t.registers[t.op.Register] = Slot{Value: it, Type: types.Any}
	}
	return nil
}

// opNext advances an iterator. An exhausted iterator ends the enclosing
// loop.
func (t *Task) opNext() error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	it, ok := s.Value.(*types.Iterator)
	if !ok {
		return fault.New(fault.Type, s.Value)
	}
	v, ok := it.Next()
	if !ok {
		return t.breakLoop()
	}
	t.set(t.op.Register, v)
	return nil
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// opCheck tests a value against a type. The asserting form fails with
// TYPE and refines the value's register; the safe form yields a boolean.
func (t *Task) opCheck(ctx context.Context, assert bool) error {
	s, err := t.arg(0)
	if err != nil {
		return err
	}
	td, err := t.typeArg(1)
	if err != nil {
		return err
	}
	ok := types.Is(t.env(ctx), s.Value, td)
	if !assert {
		if t.op.Register != "" {
			t.registers[t.op.Register] = Slot{Value: ok, Type: types.BooleanType}
		}
		return nil
	}
	if !ok {
		return fault.New(fault.Type, s.Value, td)
	}
	refined := types.Make(slices.Concat(s.Type.Properties(), td.Properties())...)
	dest := t.op.Register
	if dest == "" {
		dest = t.op.Args[0]
	}
	if !reserved(dest) {
		t.registers[dest] = Slot{Value: s.Value, Type: refined}
	}
	return nil
}

func (t *Task) opNew() error {
	td, err := t.typeArg(0)
	if err != nil {
		return err
	}
	return t.instantiate(td)
}
