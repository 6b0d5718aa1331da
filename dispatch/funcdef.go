package dispatch

import (
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Funcdef: a named multimethod
// ---------------------------------------------------------------------------

// Funcdef is a function value: a name and the dispatch tree of its
// methods. A funcdef is never mutated after it is published to a
// register; Extend returns a new one.
type Funcdef struct {
	Name string
	tree *Multimethod
}

// NewFuncdef creates a funcdef holding the given methods.
func NewFuncdef(name string, methods ...*Method) *Funcdef {
	f := &Funcdef{Name: name, tree: &Multimethod{}}
	for _, m := range methods {
		f.tree.Extend(m)
	}
	return f
}

// Extend returns a copy of f with m added. f itself is unchanged.
func (f *Funcdef) Extend(m *Method) *Funcdef {
	n := &Funcdef{Name: f.Name, tree: f.tree.Clone()}
	n.tree.Extend(m)
	return n
}

// Dispatch resolves a call with the given argument types.
func (f *Funcdef) Dispatch(signature []*types.Typedef) (*Method, error) {
	return f.tree.Dispatch(f.Name, signature)
}

// Methods returns every method of f.
func (f *Funcdef) Methods() []*Method {
	return f.tree.Methods()
}

// Tree exposes the dispatch tree for inspection.
func (f *Funcdef) Tree() *Multimethod {
	return f.tree
}

// Type returns the structural type of function values.
func (f *Funcdef) Type() *types.Typedef {
	return types.FunctionType
}

func (f *Funcdef) String() string {
	return "function " + f.Name
}

// ---------------------------------------------------------------------------
// Eventdef: a multimethod of re-enterable event methods
// ---------------------------------------------------------------------------

// Eventdef is an event value. Its methods carry a message parameter and a
// body that suspends at its EVENT marker.
type Eventdef struct {
	Funcdef
}

// NewEventdef creates an eventdef holding the given methods.
func NewEventdef(name string, methods ...*Method) *Eventdef {
	return &Eventdef{Funcdef: *NewFuncdef(name, methods...)}
}

// Extend returns a copy of e with m added.
func (e *Eventdef) Extend(m *Method) *Eventdef {
	return &Eventdef{Funcdef: *e.Funcdef.Extend(m)}
}

// Type returns the structural type of event values.
func (e *Eventdef) Type() *types.Typedef {
	return types.EventType
}

func (e *Eventdef) String() string {
	return "event " + e.Name
}
