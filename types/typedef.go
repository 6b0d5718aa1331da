package types

import (
	"maps"
	"slices"
)

// Typedef is a structural type: a set of properties keyed by name, plus an
// optional prototype used to instantiate the type. Typedefs are immutable.
type Typedef struct {
	name      string
	props     map[string]*Property
	prototype Value
	hasProto  bool
}

// Make builds a typedef from zero or more properties. A later property
// with the same name overwrites an earlier one.
func Make(props ...*Property) *Typedef {
	t := &Typedef{props: make(map[string]*Property, len(props))}
	for _, p := range props {
		t.props[p.Name] = p
	}
	return t
}

// With returns a copy of t with the given properties added.
func (t *Typedef) With(props ...*Property) *Typedef {
	n := t.clone()
	for _, p := range props {
		n.props[p.Name] = p
	}
	return n
}

// WithPrototype returns a copy of t whose prototype is v.
func (t *Typedef) WithPrototype(v Value) *Typedef {
	n := t.clone()
	n.prototype, n.hasProto = v, true
	return n
}

// Named returns a copy of t that prints as name. The name does not take
// part in equality; a type is its properties.
func (t *Typedef) Named(name string) *Typedef {
	n := t.clone()
	n.name = name
	return n
}

func (t *Typedef) clone() *Typedef {
	return &Typedef{
		name:      t.name,
		props:     maps.Clone(t.props),
		prototype: t.prototype,
		hasProto:  t.hasProto,
	}
}

// Name returns the name given with Named, if any.
func (t *Typedef) Name() string {
	return t.name
}

// Prototype returns the type's default instance.
func (t *Typedef) Prototype() (Value, bool) {
	return t.prototype, t.hasProto
}

// Len returns the number of properties.
func (t *Typedef) Len() int {
	return len(t.props)
}

// Get returns the property named name.
func (t *Typedef) Get(name string) (*Property, bool) {
	p, ok := t.props[name]
	return p, ok
}

// Has reports whether t carries p (same name and parameter). Every typedef
// carries the wildcard.
func (t *Typedef) Has(p *Property) bool {
	if p == Wildcard {
		return true
	}
	q, ok := t.props[p.Name]
	return ok && q.Equal(p)
}

// Properties returns the properties ordered from most to least specific.
func (t *Typedef) Properties() []*Property {
	ps := slices.Collect(maps.Values(t.props))
	slices.SortFunc(ps, func(a, b *Property) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
	return ps
}

// Equal reports whether t and u have the same property set.
func (t *Typedef) Equal(u *Typedef) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || len(t.props) != len(u.props) {
		return false
	}
	return IsSubtype(t, u)
}

// IsOpen reports whether t constrains nothing.
func (t *Typedef) IsOpen() bool {
	return t != Discard && len(t.props) == 0
}

// IsSubtype reports whether a is a subtype of b: every property of b is
// present in a.
func IsSubtype(a, b *Typedef) bool {
	for _, p := range b.props {
		if !a.Has(p) {
			return false
		}
	}
	return true
}

// Union returns the most specific common supertype of a and b: the
// properties present in both. The result has no prototype.
func Union(a, b *Typedef) *Typedef {
	u := Make()
	for _, p := range a.props {
		if b.Has(p) {
			u.props[p.Name] = p
		}
	}
	return u
}

// Criterion returns the most specific property of a that b lacks, or nil.
func Criterion(a, b *Typedef) *Property {
	var best *Property
	for _, p := range a.props {
		if b.Has(p) {
			continue
		}
		if best == nil || less(p, best) {
			best = p
		}
	}
	return best
}

// Is reports whether v satisfies every property of t. Built-in properties
// are tested before user properties, shallowest first.
func Is(c Checker, v Value, t *Typedef) bool {
	ps := t.Properties()
	slices.Reverse(ps)
	for _, p := range ps {
		if p.IsUser() {
			continue
		}
		if !Check(p, c, v) {
			return false
		}
	}
	for _, p := range ps {
		if p.IsUser() && !Check(p, c, v) {
			return false
		}
	}
	return true
}
