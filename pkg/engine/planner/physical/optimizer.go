package physical

import (
	"slices"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

// A rule is a tranformation that can be applied on a Node.
type rule interface {
	// apply tries to apply the transformation on the node.
	// It returns a boolean indicating whether the transformation has been applied.
	apply(Node) bool
}

// splitConjunction is a rule that flattens top-level AND chains of filter
// predicates into individual terms. OR and NOT subtrees stay intact, so
// later rules only ever reorder within a single conjunction.
type splitConjunction struct{}

// apply implements rule.
func (r *splitConjunction) apply(node Node) bool {
	changed := false
	switch node := node.(type) {
	case *Filter:
		split := make([]Expression, 0, len(node.Predicates))
		for _, predicate := range node.Predicates {
			split = append(split, flattenAnd(predicate)...)
		}
		if len(split) != len(node.Predicates) {
			node.Predicates = split
			changed = true
		}
	}
	return changed
}

var _ rule = (*splitConjunction)(nil)

// removeNoopFilter is a rule that removes Filter nodes without predicates.
type removeNoopFilter struct {
	plan *Plan
}

// apply implements rule.
func (r *removeNoopFilter) apply(node Node) bool {
	changed := false
	switch node := node.(type) {
	case *Filter:
		if len(node.Predicates) == 0 {
			r.plan.eliminateNode(node)
			changed = true
		}
	}
	return changed
}

var _ rule = (*removeNoopFilter)(nil)

// predicatePushdown is a rule that moves down filter predicates to the scan
// nodes.
type predicatePushdown struct {
	plan *Plan
}

// apply implements rule.
func (r *predicatePushdown) apply(node Node) bool {
	changed := false
	switch node := node.(type) {
	case *Filter:
		for i := 0; i < len(node.Predicates); i++ {
			if ok := r.applyPredicatePushdown(node, node.Predicates[i]); ok {
				changed = true
				// remove predicates that have been pushed down
				node.Predicates = slices.Delete(node.Predicates, i, i+1)
				i--
			}
		}
	}
	return changed
}

// applyPredicatePushdown carries the predicate down towards a scan node. It
// returns true only if a scan accepted the predicate. Nodes whose output the
// predicate depends on stop the descent, so the predicate stays where it is.
func (r *predicatePushdown) applyPredicatePushdown(node Node, predicate Expression) bool {
	switch node := node.(type) {
	case *TableScan:
		if canApplyPredicate(node.Schema, predicate) {
			node.Predicates = append(node.Predicates, predicate)
			return true
		}
		return false
	case *Projection:
		if !canPassProjection(node, predicate) {
			return false
		}
	case *Apply:
		if referencesColumn(predicate, node.Binding) {
			return false
		}
	case *Unnest:
		if referencesColumn(predicate, node.As) {
			return false
		}
	case *Limit:
		// Filtering before and after a limit are different queries.
		return false
	case *Join:
		// Descend only into the side that produces every column the
		// predicate reads. Inner joins keep each side's rows intact, so
		// filtering the producing side early is equivalent.
		for _, side := range r.plan.Children(node) {
			if covers(outputColumns(r.plan, side), predicate) {
				return r.applyPredicatePushdown(side, predicate)
			}
		}
		return false
	}
	for _, child := range r.plan.Children(node) {
		if ok := r.applyPredicatePushdown(child, predicate); !ok {
			return ok
		}
	}
	return true
}

// canApplyPredicate reports whether the predicate can be evaluated while
// scanning a table with the given schema. It must not invoke functions and
// may only reference columns of the schema.
func canApplyPredicate(schema record.Schema, predicate Expression) bool {
	switch pred := predicate.(type) {
	case *UnaryExpr:
		return canApplyPredicate(schema, pred.Left)
	case *BinaryExpr:
		return canApplyPredicate(schema, pred.Left) && canApplyPredicate(schema, pred.Right)
	case *ColumnExpr:
		_, ok := schema.ColumnIndex(pred.Ref.Column)
		return ok
	case *LiteralExpr:
		return true
	default:
		return false
	}
}

// canPassProjection reports whether the predicate reads only columns the
// projection passes through under their original name.
func canPassProjection(projection *Projection, predicate Expression) bool {
	passthrough := make(map[string]struct{}, len(projection.Columns))
	for _, column := range projection.Columns {
		if column.As == "" || column.As == column.Column.Ref.Column {
			passthrough[column.Column.Ref.Column] = struct{}{}
		}
	}
	return covers(passthrough, predicate)
}

// covers reports whether every column the predicate reads is in columns.
func covers(columns map[string]struct{}, predicate Expression) bool {
	for _, ref := range columnRefs(predicate) {
		if _, ok := columns[ref.Column]; !ok {
			return false
		}
	}
	return true
}

var _ rule = (*predicatePushdown)(nil)

// markCacheEligible is a rule that marks function calls whose registered
// function is deterministic as eligible for the function output cache.
type markCacheEligible struct {
	registry functions.Registry
}

// apply implements rule.
func (r *markCacheEligible) apply(node Node) bool {
	changed := false
	for _, expr := range nodeExpressions(node) {
		for _, call := range funcCalls(expr) {
			fn, ok := r.registry.Lookup(call.Signature.Name)
			if !ok || fn.Signature() != call.Signature {
				continue
			}
			eligible := fn.Deterministic()
			if call.CacheEligible != eligible {
				call.CacheEligible = eligible
				changed = true
			}
		}
	}
	return changed
}

var _ rule = (*markCacheEligible)(nil)

// reorderTerms is a rule that reorders the predicate terms of a filter so
// that the expected per-row cost of evaluating the conjunction is minimal.
type reorderTerms struct {
	model *costModel
}

// apply implements rule.
func (r *reorderTerms) apply(node Node) bool {
	switch node := node.(type) {
	case *Filter:
		if len(node.Predicates) < 2 {
			return false
		}

		order := r.model.bestOrder(node.Predicates)
		identity := true
		for i, idx := range order {
			if idx != i {
				identity = false
				break
			}
		}
		if identity {
			return false
		}

		reordered := make([]Expression, len(order))
		for i, idx := range order {
			reordered[i] = node.Predicates[idx]
		}
		node.Predicates = reordered
		return true
	}
	return false
}

var _ rule = (*reorderTerms)(nil)

// optimization represents a single optimization pass and can hold multiple rules.
type optimization struct {
	plan  *Plan
	name  string
	rules []rule
}

func newOptimization(name string, plan *Plan) *optimization {
	return &optimization{
		name: name,
		plan: plan,
	}
}

func (o *optimization) withRules(rules ...rule) *optimization {
	o.rules = append(o.rules, rules...)
	return o
}

func (o *optimization) optimize(node Node) {
	iterations, maxIterations := 0, 3

	for iterations < maxIterations {
		iterations++

		if !o.applyRules(node) {
			// Stop immediately if an optimization pass produced no changes.
			break
		}
	}
}

func (o *optimization) applyRules(node Node) bool {
	anyChanged := false

	for _, child := range o.plan.Children(node) {
		changed := o.applyRules(child)
		if changed {
			anyChanged = true
		}
	}

	for _, rule := range o.rules {
		changed := rule.apply(node)
		if changed {
			anyChanged = true
		}
	}

	return anyChanged
}

// The optimizer can optimize physical plans using the provided optimization passes.
type optimizer struct {
	plan   *Plan
	passes []*optimization
}

func newOptimizer(plan *Plan, passes []*optimization) *optimizer {
	return &optimizer{plan: plan, passes: passes}
}

func (o *optimizer) optimize(node Node) {
	for _, pass := range o.passes {
		pass.optimize(node)
	}
}
