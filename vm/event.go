package vm

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Handler: a started event
// ---------------------------------------------------------------------------

// Handler is an event body suspended at its EVENT marker. Each message
// re-hydrates the saved registers, binds the message and runs the body
// until it returns (the next message starts again after EVENT) or yields
// at a BIND (the next message continues after it).
//
// A handler may be reached from several tasks once its register is copied
// into a future; messages are processed one at a time.
type Handler struct {
	Name        string
	MessageType *types.Typedef

	mu     sync.Mutex
	active atomic.Pointer[Task] // task processing a message, if any

	registers    map[string]Slot
	instructions []code.Instruction
	entry        int // first instruction after EVENT
	resume       int
	message      string
	final        *types.Typedef
}

// Type returns the structural type of handlers: like supervisor
// references, they are message targets.
func (h *Handler) Type() *types.Typedef {
	return types.FutureType
}

func (h *Handler) String() string {
	return "handler " + h.Name
}

// save records the continuation for the next message.
func (h *Handler) save(registers map[string]Slot, resume int) {
	h.registers = maps.Clone(registers)
	h.resume = resume
}

// frame builds the frame that processes msg.
func (h *Handler) frame(c types.Checker, msg types.Value) (*Frame, error) {
	if !types.Is(c, msg, h.MessageType) {
		return nil, fault.New(fault.Type, msg, h.MessageType)
	}
	regs := maps.Clone(h.registers)
	if h.message != "" {
		regs[h.message] = Slot{Value: msg, Type: types.Infer(msg)}
	}
	return &Frame{
		registers:    regs,
		instructions: h.instructions,
		path:         h.resume,
		final:        h.final,
		mode:         modeResume,
		handler:      h,
	}, nil
}

// suspend ends an event setup at its EVENT marker, returning the handler.
func (t *Task) suspend() {
	m := t.method
	h := &Handler{
		Name:         m.Name,
		MessageType:  m.MessageType,
		instructions: t.instructions,
		entry:        t.path,
		message:      t.op.Label(0),
		final:        m.Final,
	}
	if h.message == "" {
		h.message = m.Message
	}
	if h.MessageType == nil {
		h.MessageType = types.Any
	}
	h.save(t.registers, t.path)
	t.ret = Slot{Value: h, Type: h.Type()}
	t.path = 0
}

// yield ends the processing of one message at a BIND checkpoint. The
// optional argument names the reply register.
func (t *Task) yield() error {
	reply := Slot{Value: nil, Type: types.NoneType}
	if len(t.op.Args) > 0 {
		s, err := t.lookup(t.op.Args[0])
		if err != nil {
			return err
		}
		reply = s
	}
	t.handler.save(t.registers, t.path)
	t.ret = reply
	t.refine = reply.Type.Properties()
	t.path = 0
	return nil
}

// deliver runs one message through h in a nested frame and returns the
// reply. Errors raised inside the handler body come back reported; a
// message of the wrong type or a reply violating the final type does not.
func (t *Task) deliver(ctx context.Context, h *Handler, msg types.Value) (Slot, error) {
	if h.active.Load() == t {
		// the handler is sending to itself
		return Slot{}, fault.New(fault.Dispatch, h.Name, msg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active.Store(t)
	defer h.active.Store(nil)

	c := t.env(ctx)
	f, err := h.frame(c, msg)
	if err != nil {
		return Slot{}, err
	}
	ret, err := t.nested(ctx, f)
	if err != nil {
		return Slot{}, err
	}
	if constrained(h.final) && !types.Is(c, ret.Value, h.final) {
		return Slot{}, fault.New(fault.Cast, ret.Value, h.final)
	}
	return ret, nil
}

// send delivers msg to a handler held in a register and writes the reply
// to the destination. A failure inside the handler body leaves the error
// sentinel in the destination, as a failed call does.
func (t *Task) send(ctx context.Context, h *Handler, msg types.Value) error {
	if !types.Is(t.env(ctx), msg, h.MessageType) {
		return fault.New(fault.Type, msg, h.MessageType)
	}
	ret, err := t.deliver(ctx, h, msg)
	if err != nil {
		e := t.report(err)
		if _, fatal := e.Reported(); fatal {
			return e
		}
		if dest := t.op.Register; dest != "" {
			t.registers[dest] = Slot{Value: e, Type: types.Any}
		}
		return nil
	}
	t.writeBack(t.op.Register, ret.Value, h.final, nil)
	return nil
}
