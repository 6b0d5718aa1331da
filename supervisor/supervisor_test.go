package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/store"
	"github.com/juno-r1/sophia-sub000/types"
)

func run(t *testing.T, s *Supervisor, src string) (types.Value, error) {
	t.Helper()
	prog, err := code.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s.Run(context.Background(), prog)
}

func newSupervisor(t *testing.T, opts ...Option) *Supervisor {
	t.Helper()
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

func TestFutureAwait(t *testing.T) {
	s := newSupervisor(t)
	v, err := run(t, s, `
.const &2 2
.const &21 21
TASK ; main
double := .function number number ; n
START
r := * n &2
.return r
END
p := .future double &21
v := .await p
.return v
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42.0 {
		t.Errorf("await = %v, want 42", v)
	}
}

func TestEventFuture(t *testing.T) {
	s := newSupervisor(t)
	v, err := run(t, s, `
.const &0 0
.const &1 1
.const &5 5
TASK ; main
counter := .event any integer any ; start msg
START
total := .bind start
EVENT ; msg
total := + total msg
.return total
END
p := .future counter &0
a := .send p &1
b := .send p &5
.return b
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 6.0 {
		t.Errorf("second reply = %v, want 6", v)
	}
}

func TestAwaitEventFuture(t *testing.T) {
	s := newSupervisor(t)
	_, err := run(t, s, `
.const &0 0
TASK ; main
counter := .event any integer any ; start msg
START
EVENT ; msg
.return msg
END
p := .future counter &0
v := .await p
`)
	if fault.KindOf(err) != fault.Super {
		t.Errorf("await on an event future = %v, want SUPV", err)
	}
}

func TestReceive(t *testing.T) {
	s := newSupervisor(t)
	v, err := run(t, s, `
.const &7 7
TASK ; main
worker := .function any
START
m := .receive
.return m
END
p := .future worker
x := .send p &7
v := .await p
.return v
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 7.0 {
		t.Errorf("received = %v, want 7", v)
	}
}

func TestLinkFromPath(t *testing.T) {
	dir := t.TempDir()
	lib := ".const &42 42\nTASK ; lib\nanswer := .bind &42\n"
	if err := os.WriteFile(filepath.Join(dir, "lib"+AssemblyExt), []byte(lib), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newSupervisor(t, WithPaths(dir))
	v, err := run(t, s, `
.const &lib "lib"
.const &k "answer"
TASK ; main
m := .link &lib
n := .link &lib
v := [] n &k
.return v
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42.0 {
		t.Errorf("linked answer = %v, want 42", v)
	}
}

func TestLinkFromStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "modules.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	lib, err := code.Parse(".const &s \"hi\"\nTASK ; greet\ngreeting := .bind &s\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put(context.Background(), "greet", lib); err != nil {
		t.Fatal(err)
	}

	s := newSupervisor(t, WithModules(st))
	v, err := run(t, s, `
.const &m "greet"
.const &k "greeting"
TASK ; main
m := .link &m
v := [] m &k
.return v
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != "hi" {
		t.Errorf("linked greeting = %v, want hi", v)
	}
}

func TestLinkMissing(t *testing.T) {
	s := newSupervisor(t, WithPaths(t.TempDir()))
	_, err := run(t, s, `
.const &m "nope"
TASK ; main
m := .link &m
`)
	if fault.KindOf(err) != fault.Super {
		t.Errorf("missing module = %v, want SUPV", err)
	}
}

func TestStream(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newSupervisor(t, WithPaths(dir))
	v, err := run(t, s, `
.const &f "data.txt"
TASK ; main
s := .stream &f
.return s
`)
	if err != nil {
		t.Fatal(err)
	}
	if v != "contents" {
		t.Errorf("stream = %v, want contents", v)
	}
}

func TestSharedHandlerAcrossFutures(t *testing.T) {
	s := newSupervisor(t)
	v, err := run(t, s, `
.const &0 0
.const &1 1
.const &n 200
TASK ; main
counter := .event any integer any ; start msg
START
total := .bind start
EVENT ; msg
total := + total msg
.return total
END
h := counter &0
pump := .function any
START
i := .bind &0
START ; loop
c := < i &n
.while c
r := .send h &1
i := + i &1
.loop
END
.return i
END
p := .future pump
j := .bind &0
START ; loop
c := < j &n
.while c
r := .send h &1
j := + j &1
.loop
END
w := .await p
last := .send h &0
.return last
`)
	if err != nil {
		t.Fatal(err)
	}
	// every message from both tasks is counted exactly once
	if v != 400.0 {
		t.Errorf("total = %v, want 400", v)
	}
}
