package physical

import "fmt"

// Unnest represents a list expansion operation in the physical plan. Each
// input row is emitted once per element of its list-valued Column, with the
// list column replaced by an element column named As. Rows whose list is
// empty or NULL produce no output rows.
type Unnest struct {
	id string

	// Column is the list-valued column to expand.
	Column *ColumnExpr
	// As is the name of the element column in the output.
	As string
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (u *Unnest) ID() string {
	if u.id == "" {
		return fmt.Sprintf("%p", u)
	}
	return u.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Unnest) Type() NodeType {
	return NodeTypeUnnest
}
