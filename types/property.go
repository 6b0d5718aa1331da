// Package types implements the structural type registry: properties,
// typedefs built from them, and the subtype/union algebra the dispatch
// tree and the engine rely on.
package types

import (
	"fmt"
	"sync/atomic"

	"github.com/juno-r1/sophia-sub000/code"
)

// Value is a runtime value held in a register.
type Value = any

// Predicate is a built-in property test.
type Predicate func(c Checker, v Value) bool

// Checker runs user-defined property bodies. The engine implements it by
// executing the body in a nested frame seeded with the value.
type Checker interface {
	CheckRoutine(p *Property, v Value) bool
}

// Property is one named classifier contributing to a typedef. Built-in
// properties carry a predicate; user properties carry a routine.
type Property struct {
	Name    string
	Param   any // nil, int for length, *Typedef for element
	Routine *code.Routine

	depth int
	order int64
	pred  Predicate
}

var registrations atomic.Int64

func register(p *Property) *Property {
	p.order = registrations.Add(1)
	return p
}

// NewBuiltin registers a built-in property with a predicate.
func NewBuiltin(name string, depth int, pred Predicate) *Property {
	return register(&Property{Name: name, depth: depth, pred: pred})
}

// NewUser registers a user-defined property whose check is the routine
// body. Its depth is one more than the deepest property of its supertype,
// so it is always more specific than anything it refines.
func NewUser(name string, super *Typedef, r *code.Routine) *Property {
	depth := 0
	for _, p := range super.props {
		if p.depth > depth {
			depth = p.depth
		}
	}
	return register(&Property{Name: name, depth: depth + 1, Routine: r})
}

// Depth is the property's specificity; deeper properties are narrower.
func (p *Property) Depth() int {
	return p.depth
}

// IsUser reports whether the property is checked by a routine.
func (p *Property) IsUser() bool {
	return p.Routine != nil
}

// Equal reports whether p and q have the same name and parametric value.
func (p *Property) Equal(q *Property) bool {
	if p == q {
		return true
	}
	if p == nil || q == nil || p.Name != q.Name {
		return false
	}
	switch a := p.Param.(type) {
	case nil:
		return q.Param == nil
	case int:
		b, ok := q.Param.(int)
		return ok && a == b
	case *Typedef:
		b, ok := q.Param.(*Typedef)
		return ok && a.Equal(b)
	}
	return false
}

// Check tests v against p.
func Check(p *Property, c Checker, v Value) bool {
	switch {
	case p == Wildcard:
		return true
	case p.pred != nil:
		return p.pred(c, v)
	case p.Routine != nil && c != nil:
		return c.CheckRoutine(p, v)
	}
	return false
}

// String renders the property as it appears in typedef text.
func (p *Property) String() string {
	switch v := p.Param.(type) {
	case int:
		return fmt.Sprintf("%s:%d", p.Name, v)
	case *Typedef:
		return fmt.Sprintf("%s:(%s)", p.Name, v)
	}
	return p.Name
}

// less orders properties from most to least specific, breaking ties by
// registration order and then by text.
func less(p, q *Property) bool {
	if p.depth != q.depth {
		return p.depth > q.depth
	}
	if p.order != q.order {
		return p.order < q.order
	}
	return p.String() < q.String()
}
