package executor

import (
	"context"
	"errors"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/record"
)

// joinPipeline implements an inner nested-loop join. The right side is
// buffered in memory on the first read; the left side then streams, and
// every left batch is paired against the buffered rows. Output rows carry
// the left columns followed by the right columns.
type joinPipeline struct {
	join        *physical.Join
	left, right Pipeline
	evaluator   expressionEvaluator
	stats       *stats.Catalog

	build       []record.Row
	buildSchema record.Schema
	buildDone   bool
}

var _ Pipeline = (*joinPipeline)(nil)

// NewJoinPipeline creates a pipeline joining the left and right inputs on
// the node's condition. A nil condition yields the cross product.
func NewJoinPipeline(join *physical.Join, left, right Pipeline, evaluator expressionEvaluator, statsCatalog *stats.Catalog) Pipeline {
	return &joinPipeline{
		join:      join,
		left:      left,
		right:     right,
		evaluator: evaluator,
		stats:     statsCatalog,
	}
}

// Read implements [Pipeline].
func (p *joinPipeline) Read(ctx context.Context) (*record.Batch, error) {
	if !p.buildDone {
		if err := p.buffer(ctx); err != nil {
			return nil, err
		}
	}

	// An inner join with an empty right side yields no rows, so the left
	// side does not need to be read at all.
	if len(p.build) == 0 {
		return nil, EOF
	}

	for {
		batch, err := p.left.Read(ctx)
		if err != nil {
			return nil, err
		}

		out, err := p.joinBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if out.NumRows() == 0 {
			continue
		}
		return out, nil
	}
}

// buffer drains the right input into memory.
func (p *joinPipeline) buffer(ctx context.Context) error {
	p.buildDone = true
	for {
		batch, err := p.right.Read(ctx)
		if errors.Is(err, EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(p.buildSchema.Columns) == 0 {
			p.buildSchema = batch.Schema
		}
		p.build = append(p.build, batch.Rows...)
	}
}

// joinBatch pairs every row of the batch with every buffered row and keeps
// the pairs satisfying the join condition.
func (p *joinPipeline) joinBatch(ctx context.Context, batch *record.Batch) (*record.Batch, error) {
	columns := make([]record.ColumnSchema, 0, len(batch.Schema.Columns)+len(p.buildSchema.Columns))
	columns = append(columns, batch.Schema.Columns...)
	columns = append(columns, p.buildSchema.Columns...)
	schema := record.NewSchema(columns...)

	candidates := record.NewBatch(schema, len(batch.Rows)*len(p.build))
	for _, lrow := range batch.Rows {
		for _, rrow := range p.build {
			merged := make(record.Row, 0, len(lrow)+len(rrow))
			merged = append(merged, lrow...)
			merged = append(merged, rrow...)
			candidates.Rows = append(candidates.Rows, merged)
		}
	}

	if p.join.On == nil {
		return candidates, nil
	}

	obs := newObservations()
	out, err := filterBatch(ctx, p.evaluator, []physical.Expression{p.join.On}, candidates, obs)
	if err != nil {
		return nil, err
	}
	obs.flush(p.stats)
	return out, nil
}

// Close implements [Pipeline].
func (p *joinPipeline) Close() {
	p.left.Close()
	p.right.Close()
}
