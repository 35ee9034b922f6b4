package executor

import (
	"context"
	"fmt"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/record"
)

// NewProjectPipeline creates a pipeline that narrows each input batch to the
// projected columns, in projection order, applying renames. It returns an
// error if the projection has no columns.
func NewProjectPipeline(input Pipeline, proj *physical.Projection) (*GenericPipeline, error) {
	if len(proj.Columns) == 0 {
		return nil, fmt.Errorf("projection has no columns")
	}

	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (*record.Batch, error) {
		batch, err := inputs[0].Read(ctx)
		if err != nil {
			return nil, err
		}

		indices := make([]int, len(proj.Columns))
		columns := make([]record.ColumnSchema, len(proj.Columns))
		for i, col := range proj.Columns {
			name := col.Column.Ref.Column
			idx, ok := batch.Schema.ColumnIndex(name)
			if !ok {
				return nil, fmt.Errorf("projection references unknown column %q", name)
			}
			indices[i] = idx

			columns[i] = batch.Schema.Columns[idx]
			columns[i].Name = name
			if col.As != "" {
				columns[i].Name = col.As
			}
		}

		out := record.NewBatch(record.NewSchema(columns...), len(batch.Rows))
		for _, row := range batch.Rows {
			projected := make(record.Row, len(indices))
			for i, idx := range indices {
				projected[i] = row[idx]
			}
			out.Rows = append(out.Rows, projected)
		}
		return out, nil
	}, input), nil
}
