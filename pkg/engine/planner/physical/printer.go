package physical

import (
	"fmt"
	"strings"

	"github.com/muninndb/muninn/pkg/engine/planner/internal/tree"
)

// BuildTree converts a physical plan node and its children into a tree structure
// that can be used for visualization and debugging purposes.
func BuildTree(p *Plan, n Node) *tree.Node {
	return toTree(p, n)
}

func toTree(p *Plan, n Node) *tree.Node {
	root := toTreeNode(n)
	for _, child := range p.Children(n) {
		if ch := toTree(p, child); ch != nil {
			root.Children = append(root.Children, ch)
		}
	}
	return root
}

func toTreeNode(n Node) *tree.Node {
	treeNode := tree.NewNode(n.Type().String(), n.ID())
	switch node := n.(type) {
	case *TableScan:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("table", false, node.Table),
		}
		for i := range node.Predicates {
			treeNode.Properties = append(treeNode.Properties, tree.NewProperty(fmt.Sprintf("predicate[%d]", i), false, node.Predicates[i].String()))
		}
	case *Filter:
		for i := range node.Predicates {
			treeNode.Properties = append(treeNode.Properties, tree.NewProperty(fmt.Sprintf("predicate[%d]", i), false, node.Predicates[i].String()))
		}
	case *Projection:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("columns", true, toAnySlice(node.Columns)...),
		}
	case *Apply:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("call", false, node.Call.String()),
			tree.NewProperty("binding", false, node.Binding),
		}
		if node.Call.CacheEligible {
			treeNode.Properties = append(treeNode.Properties, tree.NewProperty("cache_eligible", false, true))
		}
	case *Join:
		if node.On != nil {
			treeNode.Properties = []tree.Property{
				tree.NewProperty("on", false, node.On.String()),
			}
		}
	case *Unnest:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("column", false, node.Column.String()),
			tree.NewProperty("as", false, node.As),
		}
	case *Limit:
		treeNode.Properties = []tree.Property{
			tree.NewProperty("skip", false, node.Skip),
			tree.NewProperty("fetch", false, node.Fetch),
		}
	}
	return treeNode
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree converts a physical [Plan] into a human-readable tree representation.
// It processes each root node in the plan graph, and returns the combined
// string output of all trees joined by newlines.
func PrintAsTree(p *Plan) string {
	results := make([]string, 0, len(p.Roots()))

	for _, root := range p.Roots() {
		sb := &strings.Builder{}
		printer := tree.NewPrinter(sb)
		node := BuildTree(p, root)
		printer.Print(node)
		results = append(results, sb.String())
	}

	return strings.Join(results, "\n")
}
