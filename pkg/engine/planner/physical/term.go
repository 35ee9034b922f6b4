package physical

import (
	"github.com/muninndb/muninn/pkg/engine/internal/types"
)

// flattenAnd splits the given expression into its top-level conjunction
// terms. Any expression that is not an AND operation, including whole OR and
// NOT subtrees, is returned as a single term.
func flattenAnd(expr Expression) []Expression {
	if binary, ok := expr.(*BinaryExpr); ok && binary.Op == types.BinaryOpAnd {
		return append(flattenAnd(binary.Left), flattenAnd(binary.Right)...)
	}
	return []Expression{expr}
}

// walkExpr calls fn for expr and every expression nested inside it.
func walkExpr(expr Expression, fn func(Expression)) {
	fn(expr)
	switch expr := expr.(type) {
	case *UnaryExpr:
		walkExpr(expr.Left, fn)
	case *BinaryExpr:
		walkExpr(expr.Left, fn)
		walkExpr(expr.Right, fn)
	case *FuncCallExpr:
		for _, arg := range expr.Args {
			walkExpr(arg, fn)
		}
	}
}

// funcCalls returns all function call expressions nested in expr, in
// evaluation order.
func funcCalls(expr Expression) []*FuncCallExpr {
	var calls []*FuncCallExpr
	walkExpr(expr, func(e Expression) {
		if call, ok := e.(*FuncCallExpr); ok {
			calls = append(calls, call)
		}
	})
	return calls
}

// columnRefs returns all column references read by expr.
func columnRefs(expr Expression) []types.ColumnRef {
	var refs []types.ColumnRef
	walkExpr(expr, func(e Expression) {
		if column, ok := e.(*ColumnExpr); ok {
			refs = append(refs, column.Ref)
		}
	})
	return refs
}

// referencesColumn reports whether expr reads a column with the given name.
func referencesColumn(expr Expression, name string) bool {
	for _, ref := range columnRefs(expr) {
		if ref.Column == name {
			return true
		}
	}
	return false
}
