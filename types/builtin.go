package types

import (
	"math"
)

// Typed is implemented by runtime values that know their own structural
// type: routines, event handlers and supervisor references.
type Typed interface {
	Type() *Typedef
}

// ---------------------------------------------------------------------------
// Built-in properties
// ---------------------------------------------------------------------------

var (
	None = NewBuiltin("none", 1, func(_ Checker, v Value) bool {
		return v == nil
	})
	Boolean = NewBuiltin("boolean", 1, func(_ Checker, v Value) bool {
		_, ok := v.(bool)
		return ok
	})
	Number = NewBuiltin("number", 1, func(_ Checker, v Value) bool {
		_, ok := v.(float64)
		return ok
	})
	Integer = NewBuiltin("integer", 2, func(_ Checker, v Value) bool {
		n, ok := v.(float64)
		return ok && isWhole(n)
	})
	Sequence = NewBuiltin("sequence", 1, func(_ Checker, v Value) bool {
		switch v.(type) {
		case string, []Value, *Record, *Slice:
			return true
		}
		return false
	})
	String = NewBuiltin("string", 2, func(_ Checker, v Value) bool {
		_, ok := v.(string)
		return ok
	})
	List = NewBuiltin("list", 2, func(_ Checker, v Value) bool {
		_, ok := v.([]Value)
		return ok
	})
	RecordProp = NewBuiltin("record", 2, func(_ Checker, v Value) bool {
		_, ok := v.(*Record)
		return ok
	})
	SliceProp = NewBuiltin("slice", 2, func(_ Checker, v Value) bool {
		_, ok := v.(*Slice)
		return ok
	})
	Routine = NewBuiltin("routine", 1, func(_ Checker, v Value) bool {
		return carries(v, "routine")
	})
	TypeProp = NewBuiltin("type", 2, func(_ Checker, v Value) bool {
		_, ok := v.(*Typedef)
		return ok
	})
	Function = NewBuiltin("function", 2, func(_ Checker, v Value) bool {
		return carries(v, "function")
	})
	Event = NewBuiltin("event", 3, func(_ Checker, v Value) bool {
		return carries(v, "event")
	})
	Future = NewBuiltin("future", 1, func(_ Checker, v Value) bool {
		return carries(v, "future")
	})

	// registration slots shared by every element(T) and length(n)
	elementKind = NewBuiltin("element", 3, nil)
	lengthKind  = NewBuiltin("length", 3, nil)
)

// Wildcard is carried by every typedef. The dispatch tree uses it to
// branch on arity alone.
var Wildcard = &Property{Name: "*"}

func carries(v Value, name string) bool {
	switch x := v.(type) {
	case *Typedef:
		return name == "routine"
	case Typed:
		_, ok := x.Type().Get(name)
		return ok
	}
	return false
}

func isWhole(n float64) bool {
	return !math.IsInf(n, 0) && n == math.Trunc(n)
}

// Element returns the parametric property "every element satisfies t".
func Element(t *Typedef) *Property {
	return &Property{
		Name:  elementKind.Name,
		Param: t,
		depth: elementKind.depth,
		order: elementKind.order,
		pred: func(c Checker, v Value) bool {
			ok := true
			Each(v, func(e Value) bool {
				ok = Is(c, e, t)
				return ok
			})
			return ok
		},
	}
}

// Length returns the parametric property "sequence has length n".
func Length(n int) *Property {
	return &Property{
		Name:  lengthKind.Name,
		Param: n,
		depth: lengthKind.depth,
		order: lengthKind.order,
		pred: func(_ Checker, v Value) bool {
			l, ok := Len(v)
			return ok && l == n
		},
	}
}

// ---------------------------------------------------------------------------
// Base typedefs
// ---------------------------------------------------------------------------

var (
	Any          = Make().Named("any")
	NoneType     = Make(None).Named("none").WithPrototype(nil)
	BooleanType  = Make(Boolean).Named("boolean").WithPrototype(false)
	NumberType   = Make(Number).Named("number").WithPrototype(0.0)
	IntegerType  = Make(Number, Integer).Named("integer").WithPrototype(0.0)
	SequenceType = Make(Sequence).Named("sequence")
	StringType   = Make(Sequence, String).Named("string").WithPrototype("")
	ListType     = Make(Sequence, List).Named("list").WithPrototype([]Value{})
	RecordType   = Make(Sequence, RecordProp).Named("record").WithPrototype(NewRecord())
	SliceType    = Make(Sequence, SliceProp).Named("slice").WithPrototype(&Slice{Step: 1})
	RoutineType  = Make(Routine).Named("routine")
	TypeType     = Make(Routine, TypeProp).Named("type")
	FunctionType = Make(Routine, Function).Named("function")
	EventType    = Make(Routine, Function, Event).Named("event")
	FutureType   = Make(Future).Named("future")
)

// Discard is the final type of methods whose result must not be written
// to the destination register.
var Discard = Make().Named("discard")

// Bases lists the base typedefs in the order the text form prefers them.
var Bases = []*Typedef{
	Any, NoneType, BooleanType, NumberType, IntegerType, SequenceType,
	StringType, ListType, RecordType, SliceType, RoutineType, TypeType,
	FunctionType, EventType, FutureType,
}

// Base returns the base typedef with the given name.
func Base(name string) (*Typedef, bool) {
	for _, b := range Bases {
		if b.name == name {
			return b, true
		}
	}
	return nil, false
}

// builtin returns the non-parametric built-in property named name.
func builtin(name string) (*Property, bool) {
	for _, p := range []*Property{
		None, Boolean, Number, Integer, Sequence, String, List, RecordProp,
		SliceProp, Routine, TypeProp, Function, Event, Future,
	} {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
