package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

type recorder struct {
	errs   []*fault.Error
	action fault.Action
}

func (r *recorder) Handle(e *fault.Error) fault.Action {
	r.errs = append(r.errs, e)
	return r.action
}

func newTask(t *testing.T, src string, opts ...Option) *Task {
	t.Helper()
	prog, err := code.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	task, err := New(prog, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return task
}

func mustRun(t *testing.T, src string, opts ...Option) (*Task, types.Value) {
	t.Helper()
	task := newTask(t, src, append([]Option{WithHandler(&recorder{})}, opts...)...)
	v, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return task, v
}

func register(t *testing.T, task *Task, name string) Slot {
	t.Helper()
	s, ok := task.Get(name)
	if !ok {
		t.Fatalf("register %s is unbound", name)
	}
	return s
}

func TestNewRejectsEmptyProgram(t *testing.T) {
	if _, err := New(&code.Program{}); !errors.Is(err, code.ErrEmptyProgram) {
		t.Fatalf("New(empty) = %v, want ErrEmptyProgram", err)
	}
}

func TestNewChecksDeclaredBindings(t *testing.T) {
	prog, err := code.Parse(".let x integer 2.5\nTASK ; main\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(prog); err == nil {
		t.Fatal("2.5 accepted as an integer binding")
	}
}

func TestRunOffTheEndReturnsNull(t *testing.T) {
	_, v := mustRun(t, "TASK ; main\n")
	if v != nil {
		t.Errorf("Run = %v, want null", v)
	}
}

func TestWhileLoop(t *testing.T) {
	_, v := mustRun(t, `
.const &0 0
.const &1 1
.let limit integer 3
TASK ; main
i := .bind &0
START ; loop
c := < i limit
.while c
i := + i &1
.loop
END
.return i
`)
	if v != 3.0 {
		t.Errorf("loop result = %v, want 3", v)
	}
}

func TestIteratorLoop(t *testing.T) {
	_, v := mustRun(t, `
.const &xs [ 1 2 3 ]
.const &0 0
TASK ; main
s := .bind &0
it := .iterator &xs
START ; loop
x := .next it
s := + s x
.loop
END
.return s
`)
	if v != 6.0 {
		t.Errorf("sum = %v, want 6", v)
	}
}

func TestBreakAndContinue(t *testing.T) {
	// sums the odd numbers below 7
	_, v := mustRun(t, `
.const &xs [ 1 2 3 4 5 6 7 8 ]
.const &0 0
.const &2 2
.const &7 7
TASK ; main
s := .bind &0
it := .iterator &xs
START ; loop
x := .next it
done := = x &7
.if done
START
.break
END
r := % x &2
even := = r &0
.if even
START
.continue
END
s := + s x
.loop
END
.return s
`)
	if v != 9.0 {
		t.Errorf("sum = %v, want 9", v)
	}
}

func TestIfElse(t *testing.T) {
	const src = `
.const &5 5
.const &small "small"
.const &big "big"
.let x integer %d
TASK ; main
c := < x &5
.if c
START
r := .bind &small
END
ELSE
r := .bind &big
END
.return r
`
	for _, tt := range []struct {
		x    int
		want string
	}{{3, "small"}, {7, "big"}} {
		_, v := mustRun(t, fmt.Sprintf(src, tt.x))
		if v != tt.want {
			t.Errorf("x = %d: got %v, want %s", tt.x, v, tt.want)
		}
	}
}

func TestCallFrameRestoration(t *testing.T) {
	task, v := mustRun(t, `
.const &1 1
TASK ; main
x := .bind &1
f := .function any any ; n
START
x := + n &1
.return x
END
y := f &1
.return x
`)
	if v != 1.0 {
		t.Errorf("caller x = %v after the call, want 1", v)
	}
	y := register(t, task, "y")
	if y.Value != 2.0 || !y.Type.Equal(types.IntegerType) {
		t.Errorf("y = %v : %s, want 2 : integer", y.Value, y.Type)
	}
	if _, ok := task.Get("n"); ok {
		t.Error("parameter n leaked into the caller")
	}
}

func TestCallerVariablesVisible(t *testing.T) {
	_, v := mustRun(t, `
.const &10 10
TASK ; main
k := .bind &10
f := .function any
START
.return k
END
r := f
.return r
`)
	if v != 10.0 {
		t.Errorf("f() = %v, want 10", v)
	}
}

func TestIntegerDispatch(t *testing.T) {
	task, _ := mustRun(t, `
.const &a "A"
.const &b "B"
.const &3 3
.const &h 2.5
.const &x "x"
TASK ; main
f := .function string number any ; n m
START
.return &a
END
f := .function string integer any ; n m
START
.return &b
END
r1 := f &3 &x
r2 := f &h &x
`)
	if r := register(t, task, "r1"); r.Value != "B" || !r.Type.Equal(types.StringType) {
		t.Errorf("f(3, x) = %v : %s, want B : string", r.Value, r.Type)
	}
	if r := register(t, task, "r2"); r.Value != "A" {
		t.Errorf("f(2.5, x) = %v, want A", r.Value)
	}
}

func TestArityMismatch(t *testing.T) {
	rec := &recorder{}
	task := newTask(t, `
.const &1 1
TASK ; main
f := .function any number number ; a b
START
.return a
END
r := f &1
`, WithHandler(rec))
	_, err := task.Run(context.Background())
	if fault.KindOf(err) != fault.Dispatch {
		t.Fatalf("Run error = %v, want DISP", err)
	}
	if len(rec.errs) != 1 {
		t.Errorf("handler saw %d errors, want 1", len(rec.errs))
	}
}

func TestSequenceBounds(t *testing.T) {
	const src = `
.const &xs [ 1 2 3 ]
.const &i %d
TASK ; main
v := [] &xs &i
.return v
`
	tests := []struct {
		i    int
		want types.Value
		kind fault.Kind
	}{
		{0, 1.0, ""},
		{2, 3.0, ""},
		{-1, 3.0, ""},
		{-3, 1.0, ""},
		{3, nil, fault.Index},
		{-4, nil, fault.Index},
	}
	for _, tt := range tests {
		task := newTask(t, fmt.Sprintf(src, tt.i), WithHandler(&recorder{}))
		v, err := task.Run(context.Background())
		if fault.KindOf(err) != tt.kind {
			t.Errorf("xs[%d]: error %v, want kind %q", tt.i, err, tt.kind)
			continue
		}
		if err == nil && v != tt.want {
			t.Errorf("xs[%d] = %v, want %v", tt.i, v, tt.want)
		}
	}
}

func TestSliceIndexBounds(t *testing.T) {
	const src = `
.const &xs [ 1 2 3 ]
.const &0 0
.const &1 1
.const &3 3
.const &half 0.5
.const &big 1e18
.const &inf +Inf
TASK ; main
%s
v := [] &xs s
.return v
`
	tests := []struct {
		slice string
		want  types.Value
		kind  fault.Kind
	}{
		{"s := .slice &1 &3", []types.Value{2.0, 3.0}, ""},
		{"s := .slice &0 &0", []types.Value{}, ""},
		{"s := .slice &0 &big", nil, fault.Index},
		{"s := .slice &0 &3 &half", nil, fault.Index},
		{"s := .slice &0 &inf", nil, fault.Type},
	}
	for _, tt := range tests {
		rec := &recorder{}
		task := newTask(t, fmt.Sprintf(src, tt.slice), WithHandler(rec))
		v, err := task.Run(context.Background())
		if fault.KindOf(err) != tt.kind {
			t.Errorf("%s: error %v, want kind %q", tt.slice, err, tt.kind)
			continue
		}
		if err != nil && len(rec.errs) != 1 {
			t.Errorf("%s: handler saw %d errors, want 1", tt.slice, len(rec.errs))
		}
		if err == nil && !types.Equal(v, tt.want) {
			t.Errorf("%s: xs[s] = %s, want %s", tt.slice, types.Format(v), types.Format(tt.want))
		}
	}
}

func TestHugeSliceLength(t *testing.T) {
	_, v := mustRun(t, `
.const &lo -1e308
.const &hi 1e308
TASK ; main
s := .slice &lo &hi
n := length s
.return n
`)
	if n, ok := v.(float64); !ok || n < 1e18 {
		t.Errorf("length = %v, want a large positive count", v)
	}
}

func TestMissingPrototype(t *testing.T) {
	task, _ := mustRun(t, `
TASK ; main
z := .new integer
w := integer
`)
	if z := register(t, task, "z"); z.Value != 0.0 {
		t.Errorf(".new integer = %v, want 0", z.Value)
	}
	if w := register(t, task, "w"); w.Value != 0.0 {
		t.Errorf("integer() = %v, want 0", w.Value)
	}

	task = newTask(t, "TASK ; main\nv := .new any\n", WithHandler(&recorder{}))
	if _, err := task.Run(context.Background()); fault.KindOf(err) != fault.Proto {
		t.Fatalf(".new any error = %v, want PROT", err)
	}
}

const failingCall = `
.const &xs [ 1 2 3 ]
.const &9 9
.const &ok "ok"
TASK ; main
g := .function any any ; xs
START
v := [] xs &9
.return v
END
r := g &xs
.return &ok
`

func TestUnwindWritesSentinel(t *testing.T) {
	rec := &recorder{action: fault.Unwind}
	task := newTask(t, failingCall, WithHandler(rec))
	v, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v != "ok" {
		t.Errorf("Run = %v, want ok", v)
	}
	r := register(t, task, "r")
	e, ok := r.Value.(*fault.Error)
	if !ok || e.Kind != fault.Index {
		t.Fatalf("r = %v, want INDX sentinel", r.Value)
	}
	if e.Op != "[]" || e.Task != "main" {
		t.Errorf("sentinel op/task = %q/%q", e.Op, e.Task)
	}
	if len(rec.errs) != 1 {
		t.Errorf("handler saw %d errors, want 1", len(rec.errs))
	}
}

func TestAbortStopsTask(t *testing.T) {
	rec := &recorder{action: fault.Abort}
	task := newTask(t, failingCall, WithHandler(rec))
	if _, err := task.Run(context.Background()); fault.KindOf(err) != fault.Index {
		t.Fatalf("Run error = %v, want INDX", err)
	}
	if _, ok := task.Get("r"); ok {
		t.Error("aborted call wrote its destination")
	}
}

func TestUserType(t *testing.T) {
	const defs = `
.const &0 0
.const &2 2
.const &3 3
.const &4 4
.const &odd "odd"
TASK ; main
even := .type integer ; n
START
r := % n &2
c := = r &0
.return c
END
`
	task, _ := mustRun(t, defs+`
a := .safe &4 even
b := .safe &3 even
e := even &4
half := .function any even ; n
START
r := / n &2
.return r
END
half := .function any integer ; n
START
.return &odd
END
h1 := half e
h2 := half &4
p := .new even
`)
	if a := register(t, task, "a"); a.Value != true {
		t.Errorf("safe 4 even = %v", a.Value)
	}
	if b := register(t, task, "b"); b.Value != false {
		t.Errorf("safe 3 even = %v", b.Value)
	}
	e := register(t, task, "e")
	if e.Value != 4.0 || e.Type.Name() != "even" {
		t.Errorf("even(4) = %v : %s", e.Value, e.Type.Name())
	}
	if h := register(t, task, "h1"); h.Value != 2.0 {
		t.Errorf("half(even 4) = %v, want 2", h.Value)
	}
	if h := register(t, task, "h2"); h.Value != "odd" {
		t.Errorf("half(integer 4) = %v, want odd", h.Value)
	}
	if p := register(t, task, "p"); p.Value != 0.0 {
		t.Errorf(".new even = %v, want inherited prototype 0", p.Value)
	}

	task = newTask(t, defs+"f := even &3\n", WithHandler(&recorder{}))
	if _, err := task.Run(context.Background()); fault.KindOf(err) != fault.Cast {
		t.Fatalf("even(3) error = %v, want CAST", err)
	}
	task = newTask(t, defs+".check &3 even\n", WithHandler(&recorder{}))
	if _, err := task.Run(context.Background()); fault.KindOf(err) != fault.Type {
		t.Fatalf(".check 3 even error = %v, want TYPE", err)
	}
}

func TestReturnTypeConstraint(t *testing.T) {
	rec := &recorder{}
	task := newTask(t, `
.const &s "s"
.const &ok "ok"
TASK ; main
f := .function integer
START
.return &s
END
r := f
.return &ok
`, WithHandler(rec))
	v, err := task.Run(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("Run = %v, %v", v, err)
	}
	if len(rec.errs) != 1 || rec.errs[0].Kind != fault.Cast {
		t.Fatalf("handler saw %v, want one CAST", rec.errs)
	}
	if r := register(t, task, "r"); fault.KindOf(asError(r.Value)) != fault.Cast {
		t.Errorf("r = %v, want CAST sentinel", r.Value)
	}
}

func asError(v types.Value) error {
	err, _ := v.(error)
	return err
}

func TestReservedFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind fault.Kind
	}{
		{"bind reserved", "true := .bind &1", fault.Bind},
		{"bind constant", "&2 := .bind &1", fault.Bind},
		{"undefined", "y := + nothing &1", fault.Find},
		{"no method", "y := + &1 &s", fault.Dispatch},
		{"not callable", "y := &1 &1", fault.Dispatch},
		{"condition not boolean", ".if &1", fault.Type},
		{"record key", "y := .record &xs &1", fault.Type},
		{"break outside loop", ".break", fault.Find},
		{"no supervisor", "y := .receive", fault.Super},
		{"bad meta", ".meta &bad", fault.Meta},
	}
	const head = `
.const &1 1
.const &s "s"
.const &xs [ 1 ]
.const &bad "x := START"
TASK ; main
`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask(t, head+tt.body+"\n", WithHandler(&recorder{}))
			if _, err := task.Run(context.Background()); fault.KindOf(err) != tt.kind {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestValueOperations(t *testing.T) {
	task, _ := mustRun(t, `
.const &a "a"
.const &b "b"
.const &0 0
.const &1 1
.const &2 2
.const &4 4
.const &xs [ 10 20 30 40 ]
TASK ; main
r := .record &a &1 &b &2
v := [] r &b
s := .slice &0 &4 &2
n := length s
ks := keys r
l := .list &1 &a
part := [] &xs s
has := in &b r
`)
	checks := map[string]types.Value{
		"v":    2.0,
		"n":    2.0,
		"ks":   []types.Value{"a", "b"},
		"l":    []types.Value{1.0, "a"},
		"part": []types.Value{10.0, 30.0},
		"has":  true,
	}
	for name, want := range checks {
		if got := register(t, task, name).Value; !types.Equal(got, want) {
			t.Errorf("%s = %s, want %s", name, types.Format(got), types.Format(want))
		}
	}
	if typ := register(t, task, "l").Type.String(); typ != "list.element:(any).length:2" {
		t.Errorf("type of l = %s", typ)
	}
}

func TestEventHandler(t *testing.T) {
	task, v := mustRun(t, `
.const &0 0
.const &1 1
TASK ; main
counter := .event any integer any ; start msg
START
total := .bind start
EVENT ; msg
total := + total msg
.return total
END
h := counter &0
a := .send h &1
b := .send h &1
.return b
`)
	if v != 2.0 {
		t.Errorf("second message = %v, want 2", v)
	}
	if a := register(t, task, "a"); a.Value != 1.0 {
		t.Errorf("first message = %v, want 1", a.Value)
	}
	h, ok := register(t, task, "h").Value.(*Handler)
	if !ok {
		t.Fatal("h is not a handler")
	}
	// messages can also be delivered from outside the loop
	got, err := task.Resume(context.Background(), h, 5.0)
	if err != nil || got != 7.0 {
		t.Errorf("Resume = %v, %v, want 7", got, err)
	}
}

func TestEventYield(t *testing.T) {
	task, _ := mustRun(t, `
.const &0 0
.const &1 1
.const &2 2
TASK ; main
gen := .event any integer any ; seed msg
START
x := .bind seed
EVENT ; msg
x := + x msg
BIND x
x := * x &2
.return x
END
h := gen &0
a := .send h &1
b := .send h &1
c := .send h &1
`)
	for name, want := range map[string]float64{"a": 1, "b": 2, "c": 3} {
		if got := register(t, task, name).Value; got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestEventMessageType(t *testing.T) {
	task := newTask(t, `
.const &0 0
.const &s "s"
TASK ; main
on := .event any integer ; msg
START
EVENT ; msg
.return msg
END
h := on
r := .send h &s
`, WithHandler(&recorder{}))
	if _, err := task.Run(context.Background()); fault.KindOf(err) != fault.Type {
		t.Fatalf("error = %v, want TYPE", err)
	}
}

func TestMeta(t *testing.T) {
	_, v := mustRun(t, `
.const &1 1
.const &src "y := + &1 &1\nz := + y &1"
TASK ; main
.meta &src
.return z
`)
	if v != 3.0 {
		t.Errorf("meta result = %v, want 3", v)
	}
}

func TestPrintDiscardsResult(t *testing.T) {
	var buf bytes.Buffer
	task, _ := mustRun(t, `
.const &msg "hello"
TASK ; main
x := print &msg
`, WithOutput(&buf))
	if buf.String() != "hello\n" {
		t.Errorf("output = %q", buf.String())
	}
	if _, ok := task.Get("x"); ok {
		t.Error("print wrote its destination")
	}
}

func TestSupervisorRequests(t *testing.T) {
	var ops []Op
	ref := &Reference{ID: uuid.New(), Name: "f"}
	sup := SupervisorFunc(func(_ context.Context, r Request) (types.Value, error) {
		ops = append(ops, r.Op)
		switch r.Op {
		case OpFuture:
			if len(r.Payload) != 2 || r.Payload[1] != 1.0 {
				return nil, fmt.Errorf("bad payload %v", r.Payload)
			}
			return ref, nil
		case OpResolve:
			if r.Payload[0] != ref {
				return nil, fmt.Errorf("unknown reference")
			}
			return 42.0, nil
		case OpLink:
			return types.NewRecord().With("answer", 42.0), nil
		}
		return nil, fmt.Errorf("unexpected %s", r.Op)
	})
	task, v := mustRun(t, `
.const &1 1
.const &mod "lib"
TASK ; main
f := .function any any ; n
START
.return n
END
p := .future f &1
m := .link &mod
v := .await p
.return v
`, WithSupervisor(sup))
	if v != 42.0 {
		t.Errorf("await = %v, want 42", v)
	}
	if len(ops) != 3 || ops[0] != OpFuture || ops[1] != OpLink || ops[2] != OpResolve {
		t.Errorf("ops = %v", ops)
	}
	if p := register(t, task, "p"); !p.Type.Equal(types.FutureType) {
		t.Errorf("future type = %s", p.Type)
	}
}

func TestInvoke(t *testing.T) {
	task, _ := mustRun(t, `
.const &1 1
TASK ; main
inc := .function any number ; n
START
r := + n &1
.return r
END
`)
	inc := register(t, task, "inc")
	v, err := task.Invoke(context.Background(), inc.Value, 41.0)
	if err != nil || v != 42.0 {
		t.Errorf("Invoke(inc, 41) = %v, %v", v, err)
	}
	if _, err := task.Invoke(context.Background(), inc.Value, "x"); fault.KindOf(err) != fault.Dispatch {
		t.Errorf("Invoke(inc, x) error = %v, want DISP", err)
	}
}

func TestExports(t *testing.T) {
	task, _ := mustRun(t, `
.const &1 1
TASK ; main
x := .bind &1
y := + x &1
`)
	got := task.Exports()
	if !types.Equal(got.Keys(), []types.Value{"x", "y"}) {
		t.Errorf("exports = %s", types.Format(got))
	}
}
