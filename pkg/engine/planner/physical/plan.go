package physical

import (
	"fmt"
	"slices"
)

// NodeType represents the type of a node in the physical plan.
type NodeType uint32

const (
	_ NodeType = iota // zero-value is an invalid type

	NodeTypeTableScan
	NodeTypeFilter
	NodeTypeProjection
	NodeTypeApply
	NodeTypeJoin
	NodeTypeUnnest
	NodeTypeLimit
)

// String returns the string representation of the [NodeType].
func (t NodeType) String() string {
	switch t {
	case NodeTypeTableScan:
		return "TableScan"
	case NodeTypeFilter:
		return "Filter"
	case NodeTypeProjection:
		return "Projection"
	case NodeTypeApply:
		return "Apply"
	case NodeTypeJoin:
		return "Join"
	case NodeTypeUnnest:
		return "Unnest"
	case NodeTypeLimit:
		return "Limit"
	default:
		panic(fmt.Sprintf("unknown node type %d", t))
	}
}

// Node is the common interface for all nodes in a physical plan.
type Node interface {
	// ID returns a string that uniquely identifies the node in the plan.
	ID() string
	// Type returns the type of the node.
	Type() NodeType
}

// An Edge connects a parent node with a child node. The child produces the
// rows the parent consumes.
type Edge struct {
	Parent, Child Node
}

// Plan represents a physical execution plan as a tree of [Node]s. Nodes and
// edges keep their insertion order, so traversal and the printed form of a
// plan are deterministic.
type Plan struct {
	nodes    []Node
	present  map[Node]struct{}
	children map[Node][]Node
	parents  map[Node][]Node
}

// addNode adds the given node to the plan and returns it. Adding a node that
// is already part of the plan has no effect.
func (p *Plan) addNode(n Node) Node {
	if p.present == nil {
		p.present = make(map[Node]struct{})
		p.children = make(map[Node][]Node)
		p.parents = make(map[Node][]Node)
	}
	if _, ok := p.present[n]; ok {
		return n
	}
	p.present[n] = struct{}{}
	p.nodes = append(p.nodes, n)
	return n
}

// addEdge connects the parent with the child node of the given edge. Both
// nodes must already be part of the plan.
func (p *Plan) addEdge(e Edge) error {
	if e.Parent == nil || e.Child == nil {
		return fmt.Errorf("edge must have both a parent and a child: %v", e)
	}
	if _, ok := p.present[e.Parent]; !ok {
		return fmt.Errorf("parent node %s is not part of the plan", e.Parent.ID())
	}
	if _, ok := p.present[e.Child]; !ok {
		return fmt.Errorf("child node %s is not part of the plan", e.Child.ID())
	}
	p.children[e.Parent] = append(p.children[e.Parent], e.Child)
	p.parents[e.Child] = append(p.parents[e.Child], e.Parent)
	return nil
}

// Children returns the child nodes of the given node in the order their
// edges were added.
func (p *Plan) Children(n Node) []Node {
	return p.children[n]
}

// Parents returns the parent nodes of the given node.
func (p *Plan) Parents(n Node) []Node {
	return p.parents[n]
}

// Roots returns all nodes without a parent, in insertion order.
func (p *Plan) Roots() []Node {
	var roots []Node
	for _, n := range p.nodes {
		if len(p.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Root returns the single root node of the plan. It returns an error if the
// plan has no root or more than one root.
func (p *Plan) Root() (Node, error) {
	roots := p.Roots()
	switch len(roots) {
	case 0:
		return nil, fmt.Errorf("plan has no root node")
	case 1:
		return roots[0], nil
	default:
		return nil, fmt.Errorf("plan has %d root nodes", len(roots))
	}
}

// Nodes returns all nodes of the plan in insertion order.
func (p *Plan) Nodes() []Node {
	return p.nodes
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int {
	return len(p.nodes)
}

// eliminateNode removes the given node from the plan and connects its
// parents directly with its children. The children take the position the
// removed node had in each parent's child list, preserving child order for
// nodes where it carries meaning.
func (p *Plan) eliminateNode(n Node) {
	if _, ok := p.present[n]; !ok {
		return
	}

	parents := p.parents[n]
	children := p.children[n]

	for _, parent := range parents {
		siblings := p.children[parent]
		for i, sibling := range siblings {
			if sibling != n {
				continue
			}
			spliced := make([]Node, 0, len(siblings)-1+len(children))
			spliced = append(spliced, siblings[:i]...)
			spliced = append(spliced, children...)
			spliced = append(spliced, siblings[i+1:]...)
			p.children[parent] = spliced
			break
		}
	}

	for _, child := range children {
		current := p.parents[child]
		for i, candidate := range current {
			if candidate != n {
				continue
			}
			spliced := make([]Node, 0, len(current)-1+len(parents))
			spliced = append(spliced, current[:i]...)
			spliced = append(spliced, parents...)
			spliced = append(spliced, current[i+1:]...)
			p.parents[child] = spliced
			break
		}
	}

	delete(p.present, n)
	delete(p.children, n)
	delete(p.parents, n)
	p.nodes = slices.DeleteFunc(p.nodes, func(other Node) bool { return other == n })
}
