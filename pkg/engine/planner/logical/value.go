// Package logical provides the logical representation of query plans.
//
// A plan is built from [Value]s, immutable descriptions of relations and
// expressions that reference each other by handle rather than by owned copy.
// [Builder] offers a fluent API for deriving new relations from existing
// ones. [Builder.ToPlan] converts the final value into a [Plan], a flat
// instruction list in static single assignment form in which every shared
// sub-expression appears exactly once.
package logical

import "fmt"

// A Value is an operand that instructions of a [Plan] can reference. Values
// that are themselves instructions, such as [BinOp] or [Select], are assigned
// an SSA identifier during plan conversion; leaf values such as [ColumnRef]
// and [Literal] are rendered inline wherever they are used.
type Value interface {
	fmt.Stringer

	// Name returns the identifier of the Value.
	Name() string

	isValue()
}

// An Instruction is a single step of a [Plan].
type Instruction interface {
	fmt.Stringer

	isInstruction()
}
