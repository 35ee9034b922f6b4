package executor

import (
	"context"
	"fmt"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/record"
)

// NewFilterPipeline creates a pipeline that emits only the rows satisfying
// all predicates of the filter node. Predicates are evaluated in slice order
// with short-circuiting, so a term only ever sees the rows that survived the
// terms before it. The optimizer orders the terms, the pipeline just honors
// that order.
//
// After each batch the pipeline reports per-function observations, latency
// and cache behavior of the calls it made as well as how selective each
// term's functions were, to the statistics catalog.
func NewFilterPipeline(filter *physical.Filter, input Pipeline, evaluator expressionEvaluator, statsCatalog *stats.Catalog) *GenericPipeline {
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (*record.Batch, error) {
		batch, err := inputs[0].Read(ctx)
		if err != nil {
			return nil, err
		}

		obs := newObservations()
		out, err := filterBatch(ctx, evaluator, filter.Predicates, batch, obs)
		if err != nil {
			return nil, err
		}

		obs.flush(statsCatalog)
		return out, nil
	}, input)
}

// filterBatch applies the terms of a conjunction to a batch in order,
// narrowing the batch after every term. Rows for which a term is not true
// are dropped without evaluating the remaining terms.
func filterBatch(ctx context.Context, evaluator expressionEvaluator, terms []physical.Expression, batch *record.Batch, obs *observations) (*record.Batch, error) {
	current := batch
	for _, term := range terms {
		if current.NumRows() == 0 {
			break
		}

		vals, err := evaluator.eval(ctx, term, current, obs)
		if err != nil {
			return nil, err
		}

		next := record.NewBatch(current.Schema, len(current.Rows))
		for i, row := range current.Rows {
			ok, err := truthiness(vals[i])
			if err != nil {
				return nil, fmt.Errorf("predicate %s: %w", term, err)
			}
			if ok {
				next.Rows = append(next.Rows, row)
			}
		}

		obs.observeTerm(term, current.NumRows(), next.NumRows())
		current = next
	}
	return current, nil
}
