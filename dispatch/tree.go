package dispatch

import (
	"fmt"
	"strings"

	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// Node is a position in the dispatch tree: a *Branch, a *Method leaf, or
// nil for an empty slot.
type Node interface {
	node()
}

func (*Branch) node() {}
func (*Method) node() {}

// Branch is an internal node. A call goes True when Index is within its
// arity and its argument type at Index carries Property.
type Branch struct {
	Property *types.Property
	Index    int
	True     Node
	False    Node
}

func (b *Branch) test(signature []*types.Typedef) bool {
	return b.Index < len(signature) && signature[b.Index].Has(b.Property)
}

// Multimethod is the root of a dispatch tree. True holds every method of
// non-zero arity; False holds the zero-arity method.
type Multimethod struct {
	True  Node
	False Node
}

// Extend inserts m into the tree. A method with the same signature as an
// existing one replaces it.
func (mm *Multimethod) Extend(m *Method) {
	if m.Arity() == 0 {
		mm.False = m
		return
	}
	slot := &mm.True
	for {
		switch n := (*slot).(type) {
		case nil:
			*slot = m
			return
		case *Method:
			*slot = combine(m, n)
			return
		case *Branch:
			if n.Index < m.Arity() && m.Signature[n.Index].Has(n.Property) {
				slot = &n.True
			} else {
				slot = &n.False
			}
		}
	}
}

// combine builds the node that replaces the leaf other when m arrives at
// its position.
func combine(m, other *Method) Node {
	if m.SameSignature(other) {
		return m
	}
	if m.Arity() != other.Arity() {
		long, short := m, other
		if short.Arity() > long.Arity() {
			long, short = short, long
		}
		return &Branch{Property: types.Wildcard, Index: short.Arity(), True: long, False: short}
	}
	for i := range m.Signature {
		if p := types.Criterion(m.Signature[i], other.Signature[i]); p != nil {
			return &Branch{Property: p, Index: i, True: m, False: other}
		}
		if p := types.Criterion(other.Signature[i], m.Signature[i]); p != nil {
			return &Branch{Property: p, Index: i, True: other, False: m}
		}
	}
	// signatures differ only in ways no property distinguishes
	return m
}

// Lookup walks the tree for a call with the given argument types and
// returns the leaf it reaches, verified against the full signature.
func (mm *Multimethod) Lookup(signature []*types.Typedef) (*Method, bool) {
	n := mm.False
	if len(signature) > 0 {
		n = mm.True
	}
	for {
		b, ok := n.(*Branch)
		if !ok {
			break
		}
		if b.test(signature) {
			n = b.True
		} else {
			n = b.False
		}
	}
	m, ok := n.(*Method)
	if !ok || m == nil || !m.Accepts(signature) {
		return nil, false
	}
	return m, true
}

// Dispatch resolves a call to name and returns a DISP error on failure.
func (mm *Multimethod) Dispatch(name string, signature []*types.Typedef) (*Method, error) {
	m, ok := mm.Lookup(signature)
	if !ok {
		args := make([]any, 0, len(signature)+1)
		args = append(args, name)
		for _, t := range signature {
			args = append(args, t)
		}
		return nil, fault.New(fault.Dispatch, args...)
	}
	return m, nil
}

// Clone returns a deep copy of the tree structure. Leaves are shared;
// methods are immutable once built.
func (mm *Multimethod) Clone() *Multimethod {
	return &Multimethod{True: cloneNode(mm.True), False: mm.False}
}

func cloneNode(n Node) Node {
	if b, ok := n.(*Branch); ok {
		return &Branch{Property: b.Property, Index: b.Index, True: cloneNode(b.True), False: cloneNode(b.False)}
	}
	return n
}

// Methods returns every leaf, zero-arity method first.
func (mm *Multimethod) Methods() []*Method {
	var out []*Method
	var walk func(Node)
	walk = func(n Node) {
		switch x := n.(type) {
		case *Method:
			out = append(out, x)
		case *Branch:
			walk(x.True)
			walk(x.False)
		}
	}
	walk(mm.False)
	walk(mm.True)
	return out
}

// String renders the tree, one node per line.
func (mm *Multimethod) String() string {
	var sb strings.Builder
	var walk func(Node, string, string)
	walk = func(n Node, indent, tag string) {
		switch x := n.(type) {
		case nil:
			fmt.Fprintf(&sb, "%s%s<empty>\n", indent, tag)
		case *Method:
			fmt.Fprintf(&sb, "%s%s%s\n", indent, tag, x)
		case *Branch:
			fmt.Fprintf(&sb, "%s%s[%d] %s?\n", indent, tag, x.Index, x.Property)
			walk(x.True, indent+"  ", "T ")
			walk(x.False, indent+"  ", "F ")
		}
	}
	walk(mm.True, "", "T ")
	walk(mm.False, "", "F ")
	return sb.String()
}
