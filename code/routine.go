package code

import "slices"

// Routine is a captured instruction body. Instruction 0 is the definition
// instruction that introduced it; execution starts at index 1.
type Routine struct {
	Name         string        `cbor:"1,keyasint"`
	Params       []string      `cbor:"2,keyasint,omitempty"`
	Instructions []Instruction `cbor:"3,keyasint"`
}

// Capture builds a routine from the definition instruction at index def,
// whose body block is expected to open at def+1. It returns the routine and
// the index just past the block's END. ok is false if no well-formed block
// follows the definition.
func Capture(instructions []Instruction, def int, name string, params []string) (r *Routine, next int, ok bool) {
	open := def + 1
	if open >= len(instructions) || instructions[open].Name != Start {
		return nil, def + 1, false
	}
	end := Match(instructions, open)
	if end < 0 {
		return nil, def + 1, false
	}
	body := make([]Instruction, 0, end-open)
	body = append(body, instructions[def])
	body = append(body, instructions[open+1:end]...)
	return &Routine{
		Name:         name,
		Params:       slices.Clone(params),
		Instructions: body,
	}, end + 1, true
}

// Empty reports whether the routine has no instructions beyond its header.
func (r *Routine) Empty() bool {
	return len(r.Instructions) <= 1
}

// Find returns the index of the first instruction named name, or -1.
func (r *Routine) Find(name string) int {
	for i, in := range r.Instructions {
		if in.Name == name {
			return i
		}
	}
	return -1
}
