package code

// Strip performs the block-removal pass run once before execution: an
// ELSE immediately closed by its END has no effect on either path through
// the conditional and is removed.
func Strip(instructions []Instruction) []Instruction {
	out := make([]Instruction, 0, len(instructions))
	for i := 0; i < len(instructions); i++ {
		in := instructions[i]
		if in.Name == Else && i+1 < len(instructions) && instructions[i+1].Closes() {
			i++
			continue
		}
		out = append(out, in)
	}
	return out
}
