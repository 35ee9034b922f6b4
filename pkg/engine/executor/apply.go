package executor

import (
	"context"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/record"
)

// NewApplyPipeline creates a pipeline that invokes the node's function call
// once per input row and appends the result as a new column named by the
// node's binding. Rows within a batch are invoked concurrently, but results
// always land in their row's position, so row order is preserved.
//
// Functions are dynamically typed, so the binding column takes the type of
// the first non-NULL result of each batch.
func NewApplyPipeline(apply *physical.Apply, input Pipeline, evaluator expressionEvaluator, statsCatalog *stats.Catalog) *GenericPipeline {
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (*record.Batch, error) {
		batch, err := inputs[0].Read(ctx)
		if err != nil {
			return nil, err
		}

		obs := newObservations()
		results, err := evaluator.eval(ctx, apply.Call, batch, obs)
		if err != nil {
			return nil, err
		}

		schema := batch.Schema.WithColumn(record.ColumnSchema{
			Name: apply.Binding,
			Type: valuesType(results),
		})

		out := record.NewBatch(schema, len(batch.Rows))
		for i, row := range batch.Rows {
			extended := make(record.Row, 0, len(row)+1)
			extended = append(extended, row...)
			extended = append(extended, results[i])
			out.Rows = append(out.Rows, extended)
		}

		obs.flush(statsCatalog)
		return out, nil
	}, input)
}

// valuesType returns the type of the first non-NULL value, or the NULL type
// if there is none.
func valuesType(vals []record.Value) record.ValueType {
	for _, v := range vals {
		if !v.IsNull() {
			return v.Type()
		}
	}
	return record.ValueTypeNull
}
