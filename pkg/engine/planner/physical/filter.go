package physical

import "fmt"

// Filter represents a filter operation in the physical plan. Only rows that
// satisfy all predicates are emitted.
type Filter struct {
	id string

	// Predicates are the terms of a conjunction, evaluated per row in slice
	// order with short-circuiting. Their order is chosen by the optimizer,
	// so cheap and selective terms run before expensive ones.
	Predicates []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (f *Filter) ID() string {
	if f.id == "" {
		return fmt.Sprintf("%p", f)
	}
	return f.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Filter) Type() NodeType {
	return NodeTypeFilter
}
