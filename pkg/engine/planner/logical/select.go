package logical

import (
	"fmt"
)

// The Select instruction filters rows of Table by the given Predicate.
// Select implements both [Instruction] and [Value].
type Select struct {
	id string

	// Table is the relation to filter.
	Table Value
	// Predicate is the condition a row must satisfy to be retained.
	Predicate Value
}

var (
	_ Value       = (*Select)(nil)
	_ Instruction = (*Select)(nil)
)

// Name returns an identifier for the Select operation.
func (s *Select) Name() string {
	if s.id != "" {
		return s.id
	}
	return fmt.Sprintf("<%p>", s)
}

// String returns the disassembled SSA form of the Select instruction.
func (s *Select) String() string {
	return fmt.Sprintf("SELECT %s [predicate=%s]", s.Table.Name(), s.Predicate.Name())
}

func (s *Select) setID(id string) { s.id = id }

func (s *Select) isValue()       {}
func (s *Select) isInstruction() {}
