package logical

import (
	"fmt"
)

// The Limit instruction skips the first Skip rows of Table and then emits at
// most Fetch rows. A Fetch of zero emits all remaining rows.
//
// Limit implements both [Instruction] and [Value].
type Limit struct {
	id string

	// Table is the relation to paginate.
	Table Value
	// Skip is the number of leading rows to drop.
	Skip uint32
	// Fetch is the maximum number of rows to emit. Zero means unlimited.
	Fetch uint32
}

var (
	_ Value       = (*Limit)(nil)
	_ Instruction = (*Limit)(nil)
)

// Name returns an identifier for the Limit operation.
func (l *Limit) Name() string {
	if l.id != "" {
		return l.id
	}
	return fmt.Sprintf("<%p>", l)
}

// String returns the disassembled SSA form of the Limit instruction.
func (l *Limit) String() string {
	return fmt.Sprintf("LIMIT %s [skip=%d, fetch=%d]", l.Table.Name(), l.Skip, l.Fetch)
}

func (l *Limit) setID(id string) { l.id = id }

func (l *Limit) isValue()       {}
func (l *Limit) isInstruction() {}
