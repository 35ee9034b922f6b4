package logical

import (
	"fmt"
	"io"

	"github.com/muninndb/muninn/pkg/engine/planner/internal/tree"
)

// PrintTree writes a tree representation of the value and all values it
// depends on to w. Scalar expressions, such as predicates and function
// calls, are rendered as comments of the instruction that evaluates them.
func PrintTree(w io.Writer, value Value) {
	printer := tree.NewPrinter(w)
	printer.Print(toTree(value))
}

func toTree(value Value) *tree.Node {
	switch v := value.(type) {
	case *MakeTable:
		return tree.NewNode("MakeTable", "", tree.NewProperty("table", false, v.Table))

	case *Select:
		node := tree.NewNode("Select", "")
		node.Comments = append(node.Comments, toExprTree(v.Predicate))
		node.Children = append(node.Children, toTree(v.Table))
		return node

	case *Project:
		columns := make([]any, len(v.Columns))
		for i, column := range v.Columns {
			columns[i] = column.String()
		}
		node := tree.NewNode("Project", "", tree.NewProperty("columns", true, columns...))
		node.Children = append(node.Children, toTree(v.Table))
		return node

	case *Apply:
		node := tree.NewNode("Apply", "", tree.NewProperty("binding", false, v.Binding))
		node.Comments = append(node.Comments, toExprTree(v.Call))
		node.Children = append(node.Children, toTree(v.Table))
		return node

	case *Join:
		node := tree.NewNode("Join", "")
		if v.On != nil {
			node.Comments = append(node.Comments, toExprTree(v.On))
		}
		node.Children = append(node.Children, toTree(v.Left), toTree(v.Right))
		return node

	case *Unnest:
		node := tree.NewNode("Unnest", "",
			tree.NewProperty("column", false, v.Column.Name()),
			tree.NewProperty("as", false, v.As),
		)
		node.Children = append(node.Children, toTree(v.Table))
		return node

	case *Limit:
		node := tree.NewNode("Limit", "",
			tree.NewProperty("skip", false, v.Skip),
			tree.NewProperty("fetch", false, v.Fetch),
		)
		node.Children = append(node.Children, toTree(v.Table))
		return node
	}
	panic(fmt.Sprintf("invalid value for tree: %T", value))
}

func toExprTree(value Value) *tree.Node {
	switch v := value.(type) {
	case *ColumnRef:
		return tree.NewNode("ColumnRef", v.Name())

	case *Literal:
		return tree.NewNode("Literal", "",
			tree.NewProperty("value", false, v.Name()),
			tree.NewProperty("kind", false, v.Value().Type()),
		)

	case *BinOp:
		node := tree.NewNode("BinOp", "", tree.NewProperty("op", false, v.Op))
		node.Children = append(node.Children, toExprTree(v.Left), toExprTree(v.Right))
		return node

	case *UnaryOp:
		node := tree.NewNode("UnaryOp", "", tree.NewProperty("op", false, v.Op))
		node.Children = append(node.Children, toExprTree(v.Value))
		return node

	case *FuncCall:
		node := tree.NewNode("FuncCall", "", tree.NewProperty("function", false, v.Function))
		for _, arg := range v.Args {
			node.Children = append(node.Children, toExprTree(arg))
		}
		return node
	}
	panic(fmt.Sprintf("invalid value for expression tree: %T", value))
}
