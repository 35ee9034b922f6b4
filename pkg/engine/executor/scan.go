package executor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/record"
	"github.com/muninndb/muninn/pkg/storage"
)

// tableScanPipeline reads batches from a table iterator, applies the
// predicates pushed into the scan, and re-slices the output so no batch
// exceeds the configured batch size. Pushed predicates never contain
// function calls, so scanning never invokes functions.
type tableScanPipeline struct {
	node      *physical.TableScan
	iter      storage.Iterator
	evaluator expressionEvaluator
	batchSize int64

	pending *record.Batch
	closed  bool
}

var _ Pipeline = (*tableScanPipeline)(nil)

func newTableScanPipeline(node *physical.TableScan, iter storage.Iterator, evaluator expressionEvaluator, batchSize int64) *tableScanPipeline {
	return &tableScanPipeline{
		node:      node,
		iter:      iter,
		evaluator: evaluator,
		batchSize: batchSize,
	}
}

// Read implements [Pipeline].
func (p *tableScanPipeline) Read(ctx context.Context) (*record.Batch, error) {
	for {
		if p.pending.NumRows() > 0 {
			return p.cut(), nil
		}

		batch, err := p.iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, EOF
		}
		if err != nil {
			return nil, fmt.Errorf("scanning table %q: %w", p.node.Table, err)
		}

		filtered, err := filterBatch(ctx, p.evaluator, p.node.Predicates, batch, newObservations())
		if err != nil {
			return nil, err
		}
		p.pending = filtered
	}
}

// cut splits off at most batchSize rows from the pending batch.
func (p *tableScanPipeline) cut() *record.Batch {
	n := int64(p.pending.NumRows())
	if p.batchSize > 0 && n > p.batchSize {
		n = p.batchSize
	}

	out := &record.Batch{Schema: p.pending.Schema, Rows: p.pending.Rows[:n]}
	p.pending = &record.Batch{Schema: p.pending.Schema, Rows: p.pending.Rows[n:]}
	return out
}

// Close implements [Pipeline].
func (p *tableScanPipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	_ = p.iter.Close()
}
