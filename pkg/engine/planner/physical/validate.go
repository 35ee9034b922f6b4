package physical

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan marks a structurally invalid physical plan. Validation runs
// before any optimization rule; an invalid plan is never optimized or
// executed.
var ErrInvalidPlan = errors.New("invalid physical plan")

// validate checks the structural invariants the optimization rules and the
// executor rely on: exactly one root, tree shape, per-type node arity, no
// nil expressions, and resolvable column and function references.
func (p *Planner) validate(plan *Plan) error {
	roots := plan.Roots()
	if len(roots) == 0 {
		return fmt.Errorf("%w: plan has no root node", ErrInvalidPlan)
	}
	if len(roots) > 1 {
		return fmt.Errorf("%w: plan has %d root nodes", ErrInvalidPlan, len(roots))
	}

	seen := make(map[Node]struct{}, plan.Len())
	if err := p.validateNode(plan, roots[0], seen); err != nil {
		return err
	}
	if len(seen) != plan.Len() {
		return fmt.Errorf("%w: %d nodes are not reachable from the root", ErrInvalidPlan, plan.Len()-len(seen))
	}
	return nil
}

func (p *Planner) validateNode(plan *Plan, node Node, seen map[Node]struct{}) error {
	if _, ok := seen[node]; ok {
		// Reaching a node twice means it has two parents, which also covers
		// cycles through it.
		return fmt.Errorf("%w: node %s has more than one parent", ErrInvalidPlan, node.ID())
	}
	seen[node] = struct{}{}

	children := plan.Children(node)
	if err := validateArity(node, len(children)); err != nil {
		return err
	}

	switch node := node.(type) {
	case *Apply:
		if node.Call == nil {
			return fmt.Errorf("%w: apply node %s has no function call", ErrInvalidPlan, node.ID())
		}
		if node.Binding == "" {
			return fmt.Errorf("%w: apply node %s has no output binding", ErrInvalidPlan, node.ID())
		}
	case *Unnest:
		if node.Column == nil {
			return fmt.Errorf("%w: unnest node %s has no column", ErrInvalidPlan, node.ID())
		}
		if node.As == "" {
			return fmt.Errorf("%w: unnest node %s has no element column name", ErrInvalidPlan, node.ID())
		}
	}

	if err := p.validateExpressions(plan, node); err != nil {
		return err
	}

	for _, child := range children {
		if err := p.validateNode(plan, child, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateArity(node Node, children int) error {
	var want int
	switch node.(type) {
	case *TableScan:
		want = 0
	case *Join:
		want = 2
	default:
		want = 1
	}
	if children != want {
		return fmt.Errorf("%w: %s node %s has %d children, expected %d", ErrInvalidPlan, node.Type(), node.ID(), children, want)
	}
	return nil
}

func (p *Planner) validateExpressions(plan *Plan, node Node) error {
	exprs := nodeExpressions(node)
	if len(exprs) == 0 {
		return nil
	}

	for _, expr := range exprs {
		if err := validateExpr(expr); err != nil {
			return fmt.Errorf("%w: node %s: %s", ErrInvalidPlan, node.ID(), err)
		}
	}

	input := inputColumns(plan, node)
	for _, expr := range exprs {
		for _, ref := range columnRefs(expr) {
			if _, ok := input[ref.Column]; !ok {
				return fmt.Errorf("%w: node %s references unknown column %s", ErrInvalidPlan, node.ID(), ref)
			}
		}
		for _, call := range funcCalls(expr) {
			if _, ok := p.registry.Lookup(call.Signature.Name); !ok {
				return fmt.Errorf("%w: node %s references unknown function %s", ErrInvalidPlan, node.ID(), call.Signature.Name)
			}
		}
	}
	return nil
}

// validateExpr checks that no operand of the expression is nil, so that
// later walks cannot trip over incomplete expressions.
func validateExpr(expr Expression) error {
	if expr == nil {
		return errors.New("nil expression")
	}
	switch expr := expr.(type) {
	case *UnaryExpr:
		return validateExpr(expr.Left)
	case *BinaryExpr:
		if err := validateExpr(expr.Left); err != nil {
			return err
		}
		return validateExpr(expr.Right)
	case *FuncCallExpr:
		for _, arg := range expr.Args {
			if err := validateExpr(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

// nodeExpressions returns all expressions held by the given node.
func nodeExpressions(node Node) []Expression {
	switch node := node.(type) {
	case *TableScan:
		return node.Predicates
	case *Filter:
		return node.Predicates
	case *Projection:
		exprs := make([]Expression, len(node.Columns))
		for i := range node.Columns {
			exprs[i] = node.Columns[i].Column
		}
		return exprs
	case *Apply:
		if node.Call != nil {
			return []Expression{node.Call}
		}
	case *Join:
		if node.On != nil {
			return []Expression{node.On}
		}
	case *Unnest:
		if node.Column != nil {
			return []Expression{node.Column}
		}
	}
	return nil
}

// outputColumns returns the set of column names produced by the subtree
// rooted at node.
func outputColumns(p *Plan, node Node) map[string]struct{} {
	switch node := node.(type) {
	case *TableScan:
		columns := make(map[string]struct{}, len(node.Schema.Columns))
		for _, column := range node.Schema.Columns {
			columns[column.Name] = struct{}{}
		}
		return columns
	case *Projection:
		columns := make(map[string]struct{}, len(node.Columns))
		for _, column := range node.Columns {
			name := column.Column.Ref.Column
			if column.As != "" {
				name = column.As
			}
			columns[name] = struct{}{}
		}
		return columns
	case *Apply:
		columns := inputColumns(p, node)
		columns[node.Binding] = struct{}{}
		return columns
	case *Unnest:
		columns := inputColumns(p, node)
		if node.Column != nil {
			delete(columns, node.Column.Ref.Column)
		}
		columns[node.As] = struct{}{}
		return columns
	default:
		// Filter, Join, and Limit pass their input through unchanged.
		return inputColumns(p, node)
	}
}

// inputColumns returns the set of column names visible to the expressions
// of the given node. For a scan this is its own schema, for every other
// node the union of its children's output columns.
func inputColumns(p *Plan, node Node) map[string]struct{} {
	if _, ok := node.(*TableScan); ok {
		return outputColumns(p, node)
	}
	columns := make(map[string]struct{})
	for _, child := range p.Children(node) {
		for name := range outputColumns(p, child) {
			columns[name] = struct{}{}
		}
	}
	return columns
}
