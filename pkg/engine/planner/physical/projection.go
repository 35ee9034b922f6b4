package physical

import "fmt"

// A ProjectedColumn is a single output column of a [Projection], optionally
// renamed.
type ProjectedColumn struct {
	// Column is the column to project.
	Column *ColumnExpr
	// As renames the column in the output when non-empty.
	As string
}

// String returns the column and its alias, if any.
func (c ProjectedColumn) String() string {
	if c.As != "" {
		return fmt.Sprintf("%s AS %s", c.Column, c.As)
	}
	return c.Column.String()
}

// Projection represents a column subset operation in the physical plan. The
// output schema contains exactly the projected columns, in order.
type Projection struct {
	id string

	// Columns are the columns retained in the output.
	Columns []ProjectedColumn
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (p *Projection) ID() string {
	if p.id == "" {
		return fmt.Sprintf("%p", p)
	}
	return p.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Projection) Type() NodeType {
	return NodeTypeProjection
}
