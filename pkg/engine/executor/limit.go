package executor

import (
	"context"
	"math"

	"github.com/muninndb/muninn/pkg/record"
)

// NewLimitPipeline creates a pipeline that skips the first skip rows of its
// input and then emits at most fetch rows. A fetch of zero emits all
// remaining rows.
func NewLimitPipeline(input Pipeline, skip, fetch uint32) *GenericPipeline {
	// We gradually reduce offsetRemaining and limitRemaining as we process
	// more batches, as the offset and limit may cross batch boundaries.
	var (
		offsetRemaining = int64(skip)
		limitRemaining  = int64(fetch)
	)
	if fetch == 0 {
		limitRemaining = math.MaxInt64
	}

	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (*record.Batch, error) {
		var length int64
		var start, end int64
		var batch *record.Batch
		var err error

		// We skip yielding zero-length batches while offsetRemaining > 0
		for length == 0 {
			// Stop once we reached the limit
			if limitRemaining <= 0 {
				return nil, EOF
			}

			// Pull the next item from input
			input := inputs[0]
			batch, err = input.Read(ctx)
			if err != nil {
				return nil, err
			}

			// We want to slice the batch so it only contains the rows we're
			// looking for, accounting for both the limit and offset.
			// We constrain the start and end to be within the bounds of the batch.
			start = min(offsetRemaining, int64(batch.NumRows()))
			end = min(start+limitRemaining, int64(batch.NumRows()))
			length = end - start

			offsetRemaining -= start
			limitRemaining -= length
		}

		return &record.Batch{Schema: batch.Schema, Rows: batch.Rows[start:end]}, nil
	}, input)
}
