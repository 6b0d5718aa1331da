package vm

import (
	"context"

	"github.com/google/uuid"

	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Supervisor contract
// ---------------------------------------------------------------------------

// Op identifies a supervisor request.
type Op int

const (
	OpFuture  Op = iota // spawn a routine as a concurrent task
	OpLink              // load a module, reply with its exports
	OpStream            // resolve a named readable stream
	OpSend              // deliver a message to a future
	OpReceive           // wait for a message to the requesting task
	OpResolve           // wait for a future's result
)

var opNames = [...]string{"future", "link", "stream", "send", "receive", "resolve"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Request is one round trip from a task to its supervisor. Task is the
// requesting task; supervisors use it to spawn children that inherit its
// namespace.
type Request struct {
	Op      Op
	Task    *Task
	Payload []types.Value
}

// Supervisor serves the blocking requests of a task. Request may be called
// from several task goroutines at once.
type Supervisor interface {
	Request(ctx context.Context, r Request) (types.Value, error)
}

// SupervisorFunc adapts a function to the Supervisor interface.
type SupervisorFunc func(ctx context.Context, r Request) (types.Value, error)

// Request calls f(ctx, r).
func (f SupervisorFunc) Request(ctx context.Context, r Request) (types.Value, error) {
	return f(ctx, r)
}

// Reference is a handle to a task owned by the supervisor.
type Reference struct {
	ID   uuid.UUID
	Name string
}

// Type returns the structural type of references.
func (r *Reference) Type() *types.Typedef {
	return types.FutureType
}

func (r *Reference) String() string {
	return "future " + r.Name + " " + r.ID.String()
}

// request performs a supervisor round trip on behalf of t. Every failure
// surfaces as a SUPV error.
func (t *Task) request(ctx context.Context, op Op, payload ...types.Value) (types.Value, error) {
	if t.super == nil {
		return nil, fault.New(fault.Super, op.String(), "no supervisor")
	}
	v, err := t.super.Request(ctx, Request{Op: op, Task: t, Payload: payload})
	if err != nil {
		return nil, fault.New(fault.Super, op.String(), err)
	}
	return v, nil
}
