package physical

import "fmt"

// Limit represents a pagination operation in the physical plan. It skips the
// first Skip rows of its input and then emits at most Fetch rows.
type Limit struct {
	id string

	// Skip is the number of leading rows to drop.
	Skip uint32
	// Fetch is the maximum number of rows to emit. Zero means unlimited.
	Fetch uint32
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (l *Limit) ID() string {
	if l.id == "" {
		return fmt.Sprintf("%p", l)
	}
	return l.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Limit) Type() NodeType {
	return NodeTypeLimit
}
