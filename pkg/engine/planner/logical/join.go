package logical

import (
	"fmt"
)

// The Join instruction combines rows of Left and Right into a single
// relation. When On is nil, the join is a cross join and every pair of rows
// is emitted. Otherwise only pairs satisfying On are emitted.
//
// Join implements both [Instruction] and [Value].
type Join struct {
	id string

	// Left and Right are the relations to combine.
	Left, Right Value
	// On is the join condition. A nil On yields the cross product.
	On Value
}

var (
	_ Value       = (*Join)(nil)
	_ Instruction = (*Join)(nil)
)

// Name returns an identifier for the Join operation.
func (j *Join) Name() string {
	if j.id != "" {
		return j.id
	}
	return fmt.Sprintf("<%p>", j)
}

// String returns the disassembled SSA form of the Join instruction.
func (j *Join) String() string {
	if j.On == nil {
		return fmt.Sprintf("JOIN %s %s", j.Left.Name(), j.Right.Name())
	}
	return fmt.Sprintf("JOIN %s %s [on=%s]", j.Left.Name(), j.Right.Name(), j.On.Name())
}

func (j *Join) setID(id string) { j.id = id }

func (j *Join) isValue()       {}
func (j *Join) isInstruction() {}
