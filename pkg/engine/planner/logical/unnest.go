package logical

import (
	"fmt"
)

// The Unnest instruction expands a list-valued Column of Table into one row
// per element. The list column is replaced in the output by an element
// column named As. Rows whose list is empty or NULL produce no output rows.
//
// Unnest implements both [Instruction] and [Value].
type Unnest struct {
	id string

	// Table is the relation to expand.
	Table Value
	// Column is the list-valued column to expand.
	Column *ColumnRef
	// As is the name of the element column in the output.
	As string
}

var (
	_ Value       = (*Unnest)(nil)
	_ Instruction = (*Unnest)(nil)
)

// Name returns an identifier for the Unnest operation.
func (u *Unnest) Name() string {
	if u.id != "" {
		return u.id
	}
	return fmt.Sprintf("<%p>", u)
}

// String returns the disassembled SSA form of the Unnest instruction.
func (u *Unnest) String() string {
	return fmt.Sprintf("UNNEST %s [column=%s, as=%s]", u.Table.Name(), u.Column.Name(), u.As)
}

func (u *Unnest) setID(id string) { u.id = id }

func (u *Unnest) isValue()       {}
func (u *Unnest) isInstruction() {}
