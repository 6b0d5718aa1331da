// Package supervisor is an in-process supervisor for engine tasks. It runs
// futures on goroutines, delivers messages between tasks, links modules
// and resolves streams.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/store"
	"github.com/juno-r1/sophia-sub000/types"
	"github.com/juno-r1/sophia-sub000/vm"
)

// Extensions searched for linked modules, in order.
const (
	AssemblyExt = ".sasm"
	ImageExt    = ".sbc"
)

// mailboxSize bounds the undelivered messages of one task.
const mailboxSize = 64

// Modules resolves module names to programs. *store.Store implements it.
type Modules interface {
	Get(ctx context.Context, name string) (*code.Program, error)
}

// envelope is one message. reply is set when the receiver is an event
// handler that answers synchronously.
type envelope struct {
	msg   types.Value
	reply chan result
}

type result struct {
	value types.Value
	err   error
}

// process is a supervised task.
type process struct {
	ref     *vm.Reference
	task    *vm.Task
	events  bool
	mailbox chan envelope
	done    chan struct{}
	result  result
}

// Supervisor serves the requests of every task it starts.
type Supervisor struct {
	mu     sync.Mutex
	procs  map[uuid.UUID]*process
	linked map[string]*types.Record

	modules  Modules
	paths    []string
	taskOpts []vm.Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    commonlog.Logger
}

// Option configures a supervisor.
type Option func(*Supervisor)

// WithModules sets the module store consulted first by linking.
func WithModules(m Modules) Option {
	return func(s *Supervisor) { s.modules = m }
}

// WithPaths sets the directories searched for linked modules and streams.
func WithPaths(paths ...string) Option {
	return func(s *Supervisor) { s.paths = append(s.paths, paths...) }
}

// WithTaskOptions sets options applied to every task the supervisor
// creates from a program.
func WithTaskOptions(opts ...vm.Option) Option {
	return func(s *Supervisor) { s.taskOpts = append(s.taskOpts, opts...) }
}

// New creates a supervisor.
func New(opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		procs:  make(map[uuid.UUID]*process),
		linked: make(map[string]*types.Record),
		ctx:    ctx,
		cancel: cancel,
		log:    commonlog.GetLogger("sophia.supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels every running future and waits for them to stop.
func (s *Supervisor) Close() {
	s.cancel()
	s.wg.Wait()
}

// Task creates a supervised task for prog without running it.
func (s *Supervisor) Task(prog *code.Program) (*vm.Task, error) {
	id := uuid.New()
	opts := append([]vm.Option{vm.WithSupervisor(s), vm.WithID(id)}, s.taskOpts...)
	t, err := vm.New(prog, opts...)
	if err != nil {
		return nil, err
	}
	s.register(&process{
		ref:     &vm.Reference{ID: id, Name: t.Name},
		task:    t,
		mailbox: make(chan envelope, mailboxSize),
		done:    make(chan struct{}),
	})
	return t, nil
}

// Run executes prog as a root task and returns its result.
func (s *Supervisor) Run(ctx context.Context, prog *code.Program) (types.Value, error) {
	t, err := s.Task(prog)
	if err != nil {
		return nil, err
	}
	defer s.unregister(t.ID)
	return t.Run(ctx)
}

func (s *Supervisor) register(p *process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[p.ref.ID] = p
}

func (s *Supervisor) unregister(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, id)
}

func (s *Supervisor) lookup(id uuid.UUID) (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("supervisor: no task %s", id)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// Request implements vm.Supervisor.
func (s *Supervisor) Request(ctx context.Context, r vm.Request) (types.Value, error) {
	s.log.Debugf("%s request from %s", r.Op, r.Task.Name)
	switch r.Op {
	case vm.OpFuture:
		return s.future(r)
	case vm.OpSend:
		return s.send(ctx, r)
	case vm.OpReceive:
		return s.receive(ctx, r)
	case vm.OpResolve:
		return s.resolve(ctx, r)
	case vm.OpLink:
		return s.link(ctx, r)
	case vm.OpStream:
		return s.stream(r)
	}
	return nil, fmt.Errorf("supervisor: unknown request %s", r.Op)
}

func payload[T any](r vm.Request, i int) (T, error) {
	var zero T
	if i >= len(r.Payload) {
		return zero, fmt.Errorf("supervisor: %s request is missing argument %d", r.Op, i)
	}
	v, ok := r.Payload[i].(T)
	if !ok {
		return zero, fmt.Errorf("supervisor: %s request argument %d is %s", r.Op, i, types.Format(r.Payload[i]))
	}
	return v, nil
}

// future spawns the routine in Payload[0] with the remaining arguments.
func (s *Supervisor) future(r vm.Request) (types.Value, error) {
	if len(r.Payload) == 0 {
		return nil, fmt.Errorf("supervisor: future request without a routine")
	}
	fn, args := r.Payload[0], r.Payload[1:]
	var name string
	var events bool
	switch x := fn.(type) {
	case *dispatch.Funcdef:
		name = x.Name
	case *dispatch.Eventdef:
		name, events = x.Name, true
	default:
		return nil, fmt.Errorf("supervisor: cannot start %s", types.Format(fn))
	}
	id := uuid.New()
	p := &process{
		ref:     &vm.Reference{ID: id, Name: name},
		task:    r.Task.Spawn(name, id),
		events:  events,
		mailbox: make(chan envelope, mailboxSize),
		done:    make(chan struct{}),
	}
	s.register(p)
	s.wg.Add(1)
	go s.serve(p, fn, args)
	return p.ref, nil
}

// serve runs a future to completion, or for event futures, starts the
// handler and answers messages until the supervisor closes.
func (s *Supervisor) serve(p *process, fn types.Value, args []types.Value) {
	defer s.wg.Done()
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.result = result{err: fmt.Errorf("supervisor: panic in %s: %v", p.ref.Name, r)}
		}
	}()

	v, err := p.task.Invoke(s.ctx, fn, args...)
	if err != nil || !p.events {
		p.result = result{value: v, err: err}
		s.log.Debugf("future %s finished", p.ref.Name)
		return
	}
	h, ok := v.(*vm.Handler)
	if !ok {
		// the event returned before reaching its EVENT marker
		p.result = result{value: v}
		return
	}
	for {
		select {
		case env := <-p.mailbox:
			reply, err := p.task.Resume(s.ctx, h, env.msg)
			if env.reply != nil {
				env.reply <- result{value: reply, err: err}
			}
		case <-s.ctx.Done():
			p.result = result{err: s.ctx.Err()}
			return
		}
	}
}

// send delivers Payload[1] to the future Payload[0]. Event futures answer
// synchronously; other futures queue the message and the reply is null.
func (s *Supervisor) send(ctx context.Context, r vm.Request) (types.Value, error) {
	ref, err := payload[*vm.Reference](r, 0)
	if err != nil {
		return nil, err
	}
	if len(r.Payload) < 2 {
		return nil, fmt.Errorf("supervisor: send request without a message")
	}
	p, err := s.lookup(ref.ID)
	if err != nil {
		return nil, err
	}
	env := envelope{msg: r.Payload[1]}
	if p.events {
		env.reply = make(chan result, 1)
	}
	select {
	case p.mailbox <- env:
	case <-p.done:
		return nil, fmt.Errorf("supervisor: %s has finished", ref)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if env.reply == nil {
		return nil, nil
	}
	select {
	case res := <-env.reply:
		return res.value, res.err
	case <-p.done:
		return nil, fmt.Errorf("supervisor: %s finished before replying", ref)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// receive waits for the next message to the requesting task.
func (s *Supervisor) receive(ctx context.Context, r vm.Request) (types.Value, error) {
	p, err := s.lookup(r.Task.ID)
	if err != nil {
		return nil, err
	}
	select {
	case env := <-p.mailbox:
		return env.msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

// resolve waits for the future Payload[0] to finish.
func (s *Supervisor) resolve(ctx context.Context, r vm.Request) (types.Value, error) {
	ref, err := payload[*vm.Reference](r, 0)
	if err != nil {
		return nil, err
	}
	p, err := s.lookup(ref.ID)
	if err != nil {
		return nil, err
	}
	if p.events {
		select {
		case <-p.done:
		default:
			return nil, fmt.Errorf("supervisor: %s is a running event handler", ref)
		}
	}
	select {
	case <-p.done:
		return p.result.value, p.result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Modules and streams
// ---------------------------------------------------------------------------

// link runs the module named Payload[0] in its own task and replies with
// its exports. A module is run at most once per supervisor.
func (s *Supervisor) link(ctx context.Context, r vm.Request) (types.Value, error) {
	name, err := payload[string](r, 0)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	exports, ok := s.linked[name]
	s.mu.Unlock()
	if ok {
		return exports, nil
	}

	prog, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	t, err := s.Task(prog)
	if err != nil {
		return nil, fmt.Errorf("supervisor: linking %s: %w", name, err)
	}
	defer s.unregister(t.ID)
	if _, err := t.Run(ctx); err != nil {
		return nil, fmt.Errorf("supervisor: linking %s: %w", name, err)
	}
	exports = t.Exports()

	s.mu.Lock()
	s.linked[name] = exports
	s.mu.Unlock()
	s.log.Infof("linked module %s", name)
	return exports, nil
}

// load finds a module in the store, then in the search paths as assembly
// text or as a program image.
func (s *Supervisor) load(ctx context.Context, name string) (*code.Program, error) {
	if s.modules != nil {
		prog, err := s.modules.Get(ctx, name)
		if err == nil {
			return prog, nil
		}
		if !errors.Is(err, store.ErrModuleNotFound) {
			return nil, err
		}
	}
	for _, dir := range s.paths {
		base := filepath.Join(dir, name)
		if data, err := os.ReadFile(base + AssemblyExt); err == nil {
			return code.Parse(string(data))
		}
		if data, err := os.ReadFile(base + ImageExt); err == nil {
			return code.Unmarshal(data)
		}
	}
	return nil, fmt.Errorf("supervisor: module %s not found", name)
}

// stream reads the named file from the search paths.
func (s *Supervisor) stream(r vm.Request) (types.Value, error) {
	name, err := payload[string](r, 0)
	if err != nil {
		return nil, err
	}
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = candidates[:0]
		for _, dir := range s.paths {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
	}
	return nil, fmt.Errorf("supervisor: stream %s not found", name)
}
