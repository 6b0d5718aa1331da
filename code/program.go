package code

import (
	"errors"
	"fmt"
)

// LiteralKind identifies the shape of a namespace literal.
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitBool
	LitNumber
	LitString
	LitList
)

// Literal is a constant value interned by the compiler into the initial
// namespace. It is a tagged form so that it survives the wire encoding
// without losing the distinction between numbers, strings and lists.
type Literal struct {
	Kind   LiteralKind `cbor:"1,keyasint"`
	Bool   bool        `cbor:"2,keyasint,omitempty"`
	Number float64     `cbor:"3,keyasint,omitempty"`
	Text   string      `cbor:"4,keyasint,omitempty"`
	Items  []Literal   `cbor:"5,keyasint,omitempty"`
}

// Value converts the literal to a runtime value: nil, bool, float64,
// string or []any.
func (l Literal) Value() any {
	switch l.Kind {
	case LitBool:
		return l.Bool
	case LitNumber:
		return l.Number
	case LitString:
		return l.Text
	case LitList:
		items := make([]any, len(l.Items))
		for i, it := range l.Items {
			items[i] = it.Value()
		}
		return items
	}
	return nil
}

// LiteralOf converts a Go constant to a literal.
func LiteralOf(v any) (Literal, error) {
	switch x := v.(type) {
	case nil:
		return Literal{Kind: LitNull}, nil
	case bool:
		return Literal{Kind: LitBool, Bool: x}, nil
	case float64:
		return Literal{Kind: LitNumber, Number: x}, nil
	case int:
		return Literal{Kind: LitNumber, Number: float64(x)}, nil
	case string:
		return Literal{Kind: LitString, Text: x}, nil
	case []any:
		items := make([]Literal, len(x))
		for i, it := range x {
			l, err := LiteralOf(it)
			if err != nil {
				return Literal{}, err
			}
			items[i] = l
		}
		return Literal{Kind: LitList, Items: items}, nil
	}
	return Literal{}, fmt.Errorf("code: %T is not a literal", v)
}

// Binding is one entry of the initial namespace. Type is a typedef in
// text form; an empty Type means the engine infers it from the value.
type Binding struct {
	Name  string  `cbor:"1,keyasint"`
	Value Literal `cbor:"2,keyasint"`
	Type  string  `cbor:"3,keyasint,omitempty"`
}

// Program is the compiler's output: an instruction stream plus the initial
// namespace it expects.
type Program struct {
	Instructions []Instruction `cbor:"1,keyasint"`
	Namespace    []Binding     `cbor:"2,keyasint,omitempty"`
}

// ErrEmptyProgram is returned for programs without instructions.
var ErrEmptyProgram = errors.New("code: empty program")

// Name returns the task name carried by instruction 0.
func (p *Program) Name() string {
	if len(p.Instructions) == 0 {
		return ""
	}
	return p.Instructions[0].Label(0)
}

// Validate checks the parts of the contract the engine relies on: a
// non-empty instruction list whose first instruction names the task, and
// balanced blocks.
func (p *Program) Validate() error {
	if len(p.Instructions) == 0 {
		return ErrEmptyProgram
	}
	if p.Name() == "" {
		return fmt.Errorf("code: instruction 0 (%s) carries no task name", p.Instructions[0])
	}
	depth := 0
	for i, in := range p.Instructions {
		switch {
		case in.Opens():
			depth++
		case in.Closes():
			depth--
			if depth < 0 {
				return fmt.Errorf("code: unmatched END at %d", i)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("code: %d unterminated block(s)", depth)
	}
	return nil
}
