// Package fault defines the error taxonomy raised by the execution engine
// and the handler contract through which those errors are reported.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an engine error. The string form is the four-letter code used
// in diagnostics.
type Kind string

const (
	Find     Kind = "FIND" // undefined register reference
	Dispatch Kind = "DISP" // no dispatch match, arity or signature mismatch
	Type     Kind = "TYPE" // explicit type check failed
	Cast     Kind = "CAST" // constructor or return constraint failed
	Index    Kind = "INDX" // sequence index out of bounds
	Proto    Kind = "PROT" // instantiated a type without a prototype
	Bind     Kind = "BIND" // attempted to bind a reserved name
	Meta     Kind = "META" // runtime meta-compilation failed
	Super    Kind = "SUPV" // supervisor round trip failed
)

var messages = map[Kind]string{
	Find:     "undefined reference",
	Dispatch: "no method matches",
	Type:     "type check failed",
	Cast:     "cannot cast",
	Index:    "index out of bounds",
	Proto:    "type has no prototype",
	Bind:     "cannot bind reserved name",
	Meta:     "meta-compilation failed",
	Super:    "supervisor request failed",
}

// Error is a failure detected by the engine. Args carry the offending
// name, value or type in the order the diagnostic wants to print them.
type Error struct {
	Kind Kind
	Op   string // instruction name active when the error was raised
	Task string // task name
	Args []any

	// set once the handler has seen the error
	reported bool
	fatal    bool
}

// New creates an error of the given kind.
func New(kind Kind, args ...any) *Error {
	return &Error{Kind: kind, Args: args}
}

// Error formats the diagnostic: KIND: message: arg, arg (in op).
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	if msg, ok := messages[e.Kind]; ok {
		sb.WriteString(msg)
	} else {
		sb.WriteString("error")
	}
	for i, a := range e.Args {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(formatArg(a))
	}
	if e.Op != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Op)
	}
	return sb.String()
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, fault.New(fault.Index)) matches any INDX error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func formatArg(a any) string {
	switch v := a.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	case nil:
		return "null"
	}
	return fmt.Sprintf("%v", a)
}

// KindOf returns the kind of err if it wraps an *Error, or "" otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// From returns err as an *Error, wrapping foreign errors as SUPV failures.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(Super, err)
}

// Reported reports whether a handler has already decided on this error,
// and if so whether it decided to abort.
func (e *Error) Reported() (reported, fatal bool) {
	return e.reported, e.fatal
}

// MarkReported records the handler's decision so that outer frames
// propagate it without reporting the error twice.
func (e *Error) MarkReported(action Action) {
	e.reported = true
	e.fatal = action == Abort
}
