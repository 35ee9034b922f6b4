package logical

import (
	"fmt"
	"strings"
)

// A ProjectedColumn is a single output column of a [Project] instruction,
// optionally renamed.
type ProjectedColumn struct {
	// Column is the column to project.
	Column *ColumnRef
	// As renames the column in the output when non-empty.
	As string
}

// String returns the column and its alias, if any.
func (c ProjectedColumn) String() string {
	if c.As != "" {
		return fmt.Sprintf("%s AS %s", c.Column.Name(), c.As)
	}
	return c.Column.Name()
}

// The Project instruction narrows Table to the given set of columns.
// Project implements both [Instruction] and [Value].
type Project struct {
	id string

	// Table is the relation to project.
	Table Value
	// Columns are the columns retained in the output, in order.
	Columns []ProjectedColumn
}

var (
	_ Value       = (*Project)(nil)
	_ Instruction = (*Project)(nil)
)

// Name returns an identifier for the Project operation.
func (p *Project) Name() string {
	if p.id != "" {
		return p.id
	}
	return fmt.Sprintf("<%p>", p)
}

// String returns the disassembled SSA form of the Project instruction.
func (p *Project) String() string {
	columns := make([]string, len(p.Columns))
	for i, column := range p.Columns {
		columns[i] = column.String()
	}
	return fmt.Sprintf("PROJECT %s [columns=(%s)]", p.Table.Name(), strings.Join(columns, ", "))
}

func (p *Project) setID(id string) { p.id = id }

func (p *Project) isValue()       {}
func (p *Project) isInstruction() {}
