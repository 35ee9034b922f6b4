package physical

import "fmt"

// Apply represents a per-row function invocation in the physical plan. The
// result of Call is appended to every row as a new column named Binding;
// input rows pass through otherwise unchanged.
//
// Apply is a barrier for predicate pushdown: predicates that read Binding
// cannot move below it.
type Apply struct {
	id string

	// Call is the function invocation evaluated for every row.
	Call *FuncCallExpr
	// Binding is the name of the produced output column.
	Binding string
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (a *Apply) ID() string {
	if a.id == "" {
		return fmt.Sprintf("%p", a)
	}
	return a.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*Apply) Type() NodeType {
	return NodeTypeApply
}
