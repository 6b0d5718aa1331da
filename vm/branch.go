package vm

import (
	"github.com/juno-r1/sophia-sub000/code"
	"github.com/juno-r1/sophia-sub000/fault"
)

// ---------------------------------------------------------------------------
// Block control
// ---------------------------------------------------------------------------

// skip continues after the block opened at index open.
func (t *Task) skip(open int) {
	end := code.Match(t.instructions, open)
	if end < 0 {
		t.path = len(t.instructions)
		return
	}
	t.path = end + 1
}

func isLoop(in code.Instruction) bool {
	return in.Name == code.Start && in.HasLabel(code.LoopLabel)
}

// loopStart returns the index of the START of the innermost loop enclosing
// the current instruction.
func (t *Task) loopStart() (int, error) {
	start := code.Enclosing(t.instructions, t.path-1, isLoop)
	if start < 0 {
		return 0, fault.New(fault.Find, code.LoopLabel)
	}
	return start, nil
}

// branch skips the block that follows a false condition. When the block is
// followed by an ELSE, execution enters the ELSE block.
func (t *Task) branch() {
	if t.path >= len(t.instructions) || !t.instructions[t.path].Opens() {
		return
	}
	t.skip(t.path)
	if t.path < len(t.instructions) && t.instructions[t.path].Name == code.Else {
		t.path++
	}
}

// breakLoop continues after the innermost enclosing loop.
func (t *Task) breakLoop() error {
	start, err := t.loopStart()
	if err != nil {
		return err
	}
	t.skip(start)
	return nil
}

// continueLoop rewinds to the first instruction of the innermost
// enclosing loop.
func (t *Task) continueLoop() error {
	start, err := t.loopStart()
	if err != nil {
		return err
	}
	t.path = start + 1
	return nil
}
