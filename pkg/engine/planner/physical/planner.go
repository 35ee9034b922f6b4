package physical

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muninndb/muninn/pkg/engine/planner/logical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/record"
)

// Catalog is an interface that provides methods for retrieving table
// metadata needed during planning.
type Catalog interface {
	// TableSchema returns the schema of the table with the given name.
	TableSchema(name string) (record.Schema, error)
}

// Planner creates an executable physical plan from a logical plan.
// Planning is done in three steps:
//  1. Convert
//     Instructions from the logical plan are converted into Nodes in the
//     physical plan, one node per instruction. Shared logical values are
//     duplicated, so the physical plan is always a tree.
//  2. Validate
//     The structure of the plan is checked so the optimization rules and
//     the executor can rely on it.
//  3. Optimize
//     Conjunctions are split into terms, predicates are pushed down towards
//     the scan nodes, function calls are marked cache eligible, and filter
//     terms are reordered by expected cost.
type Planner struct {
	catalog  Catalog
	registry functions.Registry
	snapshot *stats.Snapshot
	plan     *Plan

	ids map[NodeType]int
}

// NewPlanner creates a new planner instance planning against the given
// catalog, function registry, and statistics snapshot.
func NewPlanner(catalog Catalog, registry functions.Registry, snapshot *stats.Snapshot) *Planner {
	return &Planner{
		catalog:  catalog,
		registry: registry,
		snapshot: snapshot,
	}
}

// Build converts a given logical plan into a physical plan and returns an
// error if the conversion fails.
func (p *Planner) Build(lp *logical.Plan) (*Plan, error) {
	p.plan = &Plan{}
	p.ids = make(map[NodeType]int)
	for _, inst := range lp.Instructions {
		switch inst := inst.(type) {
		case *logical.Return:
			nodes, err := p.process(inst.Value)
			if err != nil {
				return nil, err
			}
			if len(nodes) > 1 {
				return nil, errors.New("logical plan has more than 1 return value")
			}
			return p.plan, nil
		}
	}
	return nil, errors.New("logical plan has no return value")
}

// nodeID returns an identifier for the next node of the given type.
// Identifiers are assigned in conversion order, so two plans built from the
// same logical plan print identically.
func (p *Planner) nodeID(t NodeType) string {
	p.ids[t]++
	return fmt.Sprintf("%s_%d", strings.ToLower(t.String()), p.ids[t])
}

// Convert a predicate from a [logical.Value] into an [Expression].
func (p *Planner) convertPredicate(inst logical.Value) Expression {
	switch inst := inst.(type) {
	case *logical.UnaryOp:
		return &UnaryExpr{
			Left: p.convertPredicate(inst.Value),
			Op:   inst.Op,
		}
	case *logical.BinOp:
		return &BinaryExpr{
			Left:  p.convertPredicate(inst.Left),
			Right: p.convertPredicate(inst.Right),
			Op:    inst.Op,
		}
	case *logical.ColumnRef:
		return &ColumnExpr{Ref: inst.Ref}
	case *logical.Literal:
		return NewLiteral(inst.Value())
	case *logical.FuncCall:
		return p.convertFuncCall(inst)
	default:
		panic(fmt.Sprintf("invalid value for predicate: %T", inst))
	}
}

// convertFuncCall resolves the called function against the registry and
// binds its current signature into the expression. Unresolvable names keep
// a zero version and are rejected during validation.
func (p *Planner) convertFuncCall(lp *logical.FuncCall) *FuncCallExpr {
	sig := functions.Signature{Name: lp.Function}
	if fn, ok := p.registry.Lookup(lp.Function); ok {
		sig = fn.Signature()
	}

	args := make([]Expression, len(lp.Args))
	for i := range lp.Args {
		args[i] = p.convertPredicate(lp.Args[i])
	}
	return &FuncCallExpr{
		Signature: sig,
		Args:      args,
	}
}

// Convert a [logical.Value] into one or multiple [Node]s.
func (p *Planner) process(inst logical.Value) ([]Node, error) {
	switch inst := inst.(type) {
	case *logical.MakeTable:
		return p.processMakeTable(inst)
	case *logical.Select:
		return p.processSelect(inst)
	case *logical.Project:
		return p.processProject(inst)
	case *logical.Apply:
		return p.processApply(inst)
	case *logical.Join:
		return p.processJoin(inst)
	case *logical.Unnest:
		return p.processUnnest(inst)
	case *logical.Limit:
		return p.processLimit(inst)
	}
	return nil, nil
}

func (p *Planner) wireChildren(node Node, tables ...logical.Value) ([]Node, error) {
	for _, table := range tables {
		children, err := p.process(table)
		if err != nil {
			return nil, err
		}
		for i := range children {
			if err := p.plan.addEdge(Edge{Parent: node, Child: children[i]}); err != nil {
				return nil, err
			}
		}
	}
	return []Node{node}, nil
}

// Convert [logical.MakeTable] into one [TableScan] node.
func (p *Planner) processMakeTable(lp *logical.MakeTable) ([]Node, error) {
	schema, err := p.catalog.TableSchema(lp.Table)
	if err != nil {
		return nil, err
	}
	node := &TableScan{
		id:     p.nodeID(NodeTypeTableScan),
		Table:  lp.Table,
		Schema: schema,
	}
	p.plan.addNode(node)
	return []Node{node}, nil
}

// Convert [logical.Select] into one [Filter] node.
func (p *Planner) processSelect(lp *logical.Select) ([]Node, error) {
	node := &Filter{
		id:         p.nodeID(NodeTypeFilter),
		Predicates: []Expression{p.convertPredicate(lp.Predicate)},
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Table)
}

// Convert [logical.Project] into one [Projection] node.
func (p *Planner) processProject(lp *logical.Project) ([]Node, error) {
	columns := make([]ProjectedColumn, len(lp.Columns))
	for i, column := range lp.Columns {
		columns[i] = ProjectedColumn{
			Column: &ColumnExpr{Ref: column.Column.Ref},
			As:     column.As,
		}
	}
	node := &Projection{
		id:      p.nodeID(NodeTypeProjection),
		Columns: columns,
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Table)
}

// Convert [logical.Apply] into one [Apply] node.
func (p *Planner) processApply(lp *logical.Apply) ([]Node, error) {
	node := &Apply{
		id:      p.nodeID(NodeTypeApply),
		Call:    p.convertFuncCall(lp.Call),
		Binding: lp.Binding,
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Table)
}

// Convert [logical.Join] into one [Join] node with two children. The left
// side is wired first; child order carries the join sides.
func (p *Planner) processJoin(lp *logical.Join) ([]Node, error) {
	node := &Join{
		id: p.nodeID(NodeTypeJoin),
	}
	if lp.On != nil {
		node.On = p.convertPredicate(lp.On)
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Left, lp.Right)
}

// Convert [logical.Unnest] into one [Unnest] node.
func (p *Planner) processUnnest(lp *logical.Unnest) ([]Node, error) {
	node := &Unnest{
		id:     p.nodeID(NodeTypeUnnest),
		Column: &ColumnExpr{Ref: lp.Column.Ref},
		As:     lp.As,
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Table)
}

// Convert [logical.Limit] into one [Limit] node.
func (p *Planner) processLimit(lp *logical.Limit) ([]Node, error) {
	node := &Limit{
		id:    p.nodeID(NodeTypeLimit),
		Skip:  lp.Skip,
		Fetch: lp.Fetch,
	}
	p.plan.addNode(node)
	return p.wireChildren(node, lp.Table)
}

// Optimize validates the plan and applies the optimization passes. The plan
// is modified in place. Optimizing the same plan against the same registry
// and statistics snapshot always produces the same result.
func (p *Planner) Optimize(plan *Plan) (*Plan, error) {
	if err := p.validate(plan); err != nil {
		return nil, err
	}

	optimizations := []*optimization{
		newOptimization("NormalizePredicates", plan).withRules(
			&splitConjunction{},
		),
		newOptimization("PredicatePushdown", plan).withRules(
			&predicatePushdown{plan: plan},
			&removeNoopFilter{plan: plan},
		),
		newOptimization("CacheEligibility", plan).withRules(
			&markCacheEligible{registry: p.registry},
		),
		newOptimization("ReorderTerms", plan).withRules(
			&reorderTerms{model: &costModel{snapshot: p.snapshot}},
		),
	}
	optimizer := newOptimizer(plan, optimizations)
	optimizer.optimize(plan.Roots()[0])

	return plan, nil
}
