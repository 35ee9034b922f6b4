package logical

import (
	"fmt"
)

// The Return instruction marks its value as the result of the plan. Return
// only implements [Instruction].
type Return struct {
	// Value is the result of the plan.
	Value Value
}

var (
	_ Instruction = (*Return)(nil)
)

// String returns the disassembled SSA form of the Return instruction.
func (r *Return) String() string {
	return fmt.Sprintf("RETURN %s", r.Value.Name())
}

func (r *Return) isInstruction() {}
