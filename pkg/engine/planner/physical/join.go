package physical

import "fmt"

// Join represents an inner join of the node's two children in the physical
// plan. The first child is the left side. Every pair of rows satisfying On
// is combined into a single output row; a nil On yields the cross product.
type Join struct {
	id string

	// On is the join condition. A nil On yields the cross product.
	On Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (j *Join) ID() string {
	if j.id == "" {
		return fmt.Sprintf("%p", j)
	}
	return j.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Join) Type() NodeType {
	return NodeTypeJoin
}
