package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	symbolTee    = "├── "
	symbolCorner = "└── "
	symbolBranch = "│   "
	symbolIndent = "    "
)

// Printer writes a [Node] and its children as a tree structure using
// box-drawing characters.
//
// Example output:
//
//	Root
//	└── Merge #foo key_a=(value_a) key_b=(value_b, value_c)
//	    ├── Product #foobar relations=(foo, bar)
//	    │   ├── Scan #foo selector={env="prod", region=".+"}
//	    │   └── Scan #bar selector={env="dev", region=".+"}
//	    └── Scan #baz
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new [Printer] that writes to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes the tree rooted at root to the printer's writer.
func (p *Printer) Print(root *Node) {
	p.printNode(root, "", "")
}

// printNode writes a single node. The head prefix is written before the node
// line itself, the tail prefix before every line of the node's subtree.
func (p *Printer) printNode(node *Node, head, tail string) {
	fmt.Fprintln(p.w, head+headline(node))

	// Comments are indented one level deeper than children. When the node has
	// children, the comment block still needs the vertical guide line that
	// connects the node to its children.
	commentTail := tail + symbolIndent
	if len(node.Children) > 0 {
		commentTail = tail + symbolBranch
	}
	for i, comment := range node.Comments {
		h, t := commentTail+symbolTee, commentTail+symbolBranch
		if i == len(node.Comments)-1 {
			h, t = commentTail+symbolCorner, commentTail+symbolIndent
		}
		p.printNode(comment, h, t)
	}

	for i, child := range node.Children {
		h, t := tail+symbolTee, tail+symbolBranch
		if i == len(node.Children)-1 {
			h, t = tail+symbolCorner, tail+symbolIndent
		}
		p.printNode(child, h, t)
	}
}

// headline renders the single-line representation of a node, consisting of its
// name, its optional identifier, and its properties.
func headline(node *Node) string {
	var sb strings.Builder
	sb.WriteString(node.Name)
	if node.ID != "" {
		sb.WriteString(" #")
		sb.WriteString(node.ID)
	}
	for _, prop := range node.Properties {
		sb.WriteString(" ")
		sb.WriteString(formatProperty(prop))
	}
	return sb.String()
}

func formatProperty(prop Property) string {
	values := make([]string, len(prop.Values))
	for i := range prop.Values {
		values[i] = fmt.Sprintf("%v", prop.Values[i])
	}
	if prop.IsMultiValue {
		return fmt.Sprintf("%s=(%s)", prop.Key, strings.Join(values, ", "))
	}
	return fmt.Sprintf("%s=%s", prop.Key, strings.Join(values, ""))
}
