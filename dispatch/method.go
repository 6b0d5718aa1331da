// Package dispatch implements multiple dispatch: a binary decision tree
// over type-annotated methods sharing one name, which resolves a call's
// argument types to exactly one method.
package dispatch

import (
	"io"
	"strconv"
	"strings"

	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/types"
)

// Env is what native methods may use from the calling task.
type Env interface {
	types.Checker
	Output() io.Writer
}

// Native is a method body implemented in Go. It receives raw values.
type Native func(env Env, args []types.Value) (types.Value, error)

// Method is one dispatch candidate and a leaf of the dispatch tree.
type Method struct {
	Name      string
	Params    []string
	Signature []*types.Typedef
	Final     *types.Typedef

	// exactly one of Native and Routine is set
	Native  Native
	Routine *code.Routine

	// event methods only: the trailing message parameter
	Message     string
	MessageType *types.Typedef
}

// NewNative creates a native method. Parameter names are positional.
func NewNative(name string, final *types.Typedef, fn Native, signature ...*types.Typedef) *Method {
	params := make([]string, len(signature))
	for i := range params {
		params[i] = "_" + strconv.Itoa(i)
	}
	return &Method{Name: name, Params: params, Signature: signature, Final: final, Native: fn}
}

// Arity returns the number of parameters.
func (m *Method) Arity() int {
	return len(m.Signature)
}

// IsNative reports whether the body is a Go function.
func (m *Method) IsNative() bool {
	return m.Native != nil
}

// SameSignature reports whether m and o have identical parameter types.
func (m *Method) SameSignature(o *Method) bool {
	if m.Arity() != o.Arity() {
		return false
	}
	for i := range m.Signature {
		if !m.Signature[i].Equal(o.Signature[i]) {
			return false
		}
	}
	return true
}

// Accepts reports whether a call with the given argument types may use m:
// the arity matches and no declared parameter type is stricter than the
// actual argument type.
func (m *Method) Accepts(signature []*types.Typedef) bool {
	if m.Arity() != len(signature) {
		return false
	}
	for i, t := range signature {
		if !types.IsSubtype(t, m.Signature[i]) {
			return false
		}
	}
	return true
}

// String renders the method signature, e.g. "f(number, any) -> string".
func (m *Method) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, t := range m.Signature {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.String())
	}
	sb.WriteByte(')')
	if m.Final != nil {
		sb.WriteString(" -> ")
		sb.WriteString(m.Final.String())
	}
	return sb.String()
}
