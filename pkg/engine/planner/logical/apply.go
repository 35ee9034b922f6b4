package logical

import (
	"fmt"
)

// The Apply instruction evaluates Call for every row of Table and emits the
// result as a new output column named Binding. Rows of Table pass through
// unchanged.
//
// Apply implements both [Instruction] and [Value].
type Apply struct {
	id string

	// Table is the relation to extend.
	Table Value
	// Call is the function invocation evaluated per row.
	Call *FuncCall
	// Binding is the name of the produced output column.
	Binding string
}

var (
	_ Value       = (*Apply)(nil)
	_ Instruction = (*Apply)(nil)
)

// Name returns an identifier for the Apply operation.
func (a *Apply) Name() string {
	if a.id != "" {
		return a.id
	}
	return fmt.Sprintf("<%p>", a)
}

// String returns the disassembled SSA form of the Apply instruction.
func (a *Apply) String() string {
	return fmt.Sprintf("APPLY %s [call=%s, binding=%s]", a.Table.Name(), a.Call.Name(), a.Binding)
}

func (a *Apply) setID(id string) { a.id = id }

func (a *Apply) isValue()       {}
func (a *Apply) isInstruction() {}
