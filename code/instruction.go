// Package code defines the instruction contract shared by the compiler
// front end and the execution engine: the instruction record, captured
// routine bodies, program images and their text and wire encodings.
package code

import (
	"strings"
)

// Pseudo-instruction names. Pseudo-instructions never have a destination
// register; they mark block structure and event resumption points.
const (
	Start = "START" // opens a block
	Else  = "ELSE"  // opens an alternative block
	End   = "END"   // closes the innermost open block
	Event = "EVENT" // event handler resumption point
	Yield = "BIND"  // event handler checkpoint
	Head  = "TASK"  // program header, label 0 is the task name
)

// LoopLabel marks a START that opens a loop body.
const LoopLabel = "loop"

// Instruction is one VM operation record.
type Instruction struct {
	Name     string   `cbor:"1,keyasint"`
	Register string   `cbor:"2,keyasint,omitempty"`
	Args     []string `cbor:"3,keyasint,omitempty"`
	Labels   []string `cbor:"4,keyasint,omitempty"`
}

// Arity returns the number of argument registers.
func (in Instruction) Arity() int {
	return len(in.Args)
}

// IsPseudo reports whether the instruction is a block or resumption marker.
func (in Instruction) IsPseudo() bool {
	return IsPseudo(in.Name)
}

// IsReserved reports whether the instruction names an internal operation
// rather than a register holding a dispatchable value.
func (in Instruction) IsReserved() bool {
	return strings.HasPrefix(in.Name, ".")
}

// Opens reports whether the instruction opens a block (START or ELSE).
func (in Instruction) Opens() bool {
	return in.Name == Start || in.Name == Else
}

// Closes reports whether the instruction closes a block.
func (in Instruction) Closes() bool {
	return in.Name == End
}

// Label returns label i, or "" when there are fewer labels.
func (in Instruction) Label(i int) string {
	if i < len(in.Labels) {
		return in.Labels[i]
	}
	return ""
}

// HasLabel reports whether label is one of the instruction's labels.
func (in Instruction) HasLabel(label string) bool {
	for _, l := range in.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// String renders the instruction in assembly form.
func (in Instruction) String() string {
	var sb strings.Builder
	if in.Register != "" {
		sb.WriteString(in.Register)
		sb.WriteString(" := ")
	}
	sb.WriteString(in.Name)
	for _, a := range in.Args {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	if len(in.Labels) > 0 {
		sb.WriteString(" ;")
		for _, l := range in.Labels {
			sb.WriteByte(' ')
			sb.WriteString(l)
		}
	}
	return sb.String()
}

// IsPseudo reports whether name is a pseudo-instruction name.
func IsPseudo(name string) bool {
	switch name {
	case Start, Else, End, Event, Yield, Head:
		return true
	}
	return false
}

// Match returns the index of the END matching the opener at index open,
// scanning forward and counting START/ELSE as +1 and END as -1.
// It returns -1 if the block is unterminated.
func Match(instructions []Instruction, open int) int {
	depth := 0
	for i := open; i < len(instructions); i++ {
		switch {
		case instructions[i].Opens():
			depth++
		case instructions[i].Closes():
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Enclosing scans backward from index from (exclusive) for the innermost
// opener that encloses it and satisfies accept. Blocks that open and close
// entirely before from are skipped. It returns -1 if none is found.
func Enclosing(instructions []Instruction, from int, accept func(Instruction) bool) int {
	depth := 0
	for i := from - 1; i >= 0; i-- {
		switch {
		case instructions[i].Closes():
			depth++
		case instructions[i].Opens():
			if depth > 0 {
				depth--
				continue
			}
			if accept(instructions[i]) {
				return i
			}
		}
	}
	return -1
}
