package physical

import (
	"fmt"

	"github.com/muninndb/muninn/pkg/record"
)

// TableScan represents a scan of a table registered in the catalog. It is
// always a leaf of the physical plan.
type TableScan struct {
	id string

	// Table is the name of the table to scan.
	Table string
	// Schema is the schema of the scanned table, resolved from the catalog
	// during planning.
	Schema record.Schema
	// Predicates are filter expressions applied while scanning, before rows
	// enter the rest of the plan. They are moved here by predicate pushdown
	// and only ever reference columns of Schema.
	Predicates []Expression
}

// ID implements the [Node] interface.
// Returns a string that uniquely identifies the node in the plan.
func (s *TableScan) ID() string {
	if s.id == "" {
		return fmt.Sprintf("%p", s)
	}
	return s.id
}

// Type implements the [Node] interface.
// Returns the type of the node.
func (*TableScan) Type() NodeType {
	return NodeTypeTableScan
}
