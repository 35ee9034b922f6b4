package executor

import (
	"context"
	"fmt"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/record"
)

// NewUnnestPipeline creates a pipeline that expands the node's list-valued
// column: each input row is emitted once per list element, with the list
// column replaced in place by an element column named by the node. Rows
// whose list is empty or NULL produce no output rows; a non-list value is
// treated as a list of one element.
func NewUnnestPipeline(unnest *physical.Unnest, input Pipeline) *GenericPipeline {
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (*record.Batch, error) {
		for {
			batch, err := inputs[0].Read(ctx)
			if err != nil {
				return nil, err
			}

			column := unnest.Column.Ref.Column
			idx, ok := batch.Schema.ColumnIndex(column)
			if !ok {
				return nil, fmt.Errorf("unnest references unknown column %q", column)
			}

			out := record.NewBatch(batch.Schema, len(batch.Rows))
			for _, row := range batch.Rows {
				for _, elem := range elements(row[idx]) {
					expanded := make(record.Row, len(row))
					copy(expanded, row)
					expanded[idx] = elem
					out.Rows = append(out.Rows, expanded)
				}
			}
			if out.NumRows() == 0 {
				continue
			}

			out.Schema = elementSchema(batch.Schema, idx, unnest.As, out.Rows)
			return out, nil
		}
	}, input)
}

// elements returns the values a single row expands to.
func elements(v record.Value) []record.Value {
	switch v.Type() {
	case record.ValueTypeNull:
		return nil
	case record.ValueTypeList:
		return v.List()
	default:
		return []record.Value{v}
	}
}

// elementSchema replaces the expanded column with the element column. The
// element type is taken from the first emitted row, since list elements are
// dynamically typed.
func elementSchema(schema record.Schema, idx int, as string, rows []record.Row) record.Schema {
	columns := make([]record.ColumnSchema, len(schema.Columns))
	copy(columns, schema.Columns)
	columns[idx] = record.ColumnSchema{Name: as, Type: record.ValueTypeNull}
	for _, row := range rows {
		if !row[idx].IsNull() {
			columns[idx].Type = row[idx].Type()
			break
		}
	}
	return record.NewSchema(columns...)
}
