package logical

import (
	"fmt"
)

// The MakeTable instruction yields a table relation from the catalog.
// MakeTable implements both [Instruction] and [Value].
type MakeTable struct {
	id string

	// Table is the name of the table to resolve against the catalog.
	Table string
}

var (
	_ Value       = (*MakeTable)(nil)
	_ Instruction = (*MakeTable)(nil)
)

// Name returns an identifier for the MakeTable operation.
func (t *MakeTable) Name() string {
	if t.id != "" {
		return t.id
	}
	return fmt.Sprintf("<%p>", t)
}

// String returns the disassembled SSA form of the MakeTable instruction.
func (t *MakeTable) String() string {
	return fmt.Sprintf("MAKETABLE [table=%s]", t.Table)
}

func (t *MakeTable) setID(id string) { t.id = id }

func (t *MakeTable) isValue()       {}
func (t *MakeTable) isInstruction() {}
