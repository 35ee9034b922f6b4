package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/muninndb/muninn/pkg/engine/executor"
	"github.com/muninndb/muninn/pkg/record"
)

// QueryState denotes where a query is in its lifecycle. A query starts as
// initialized, becomes running on the first read, and ends in exactly one of
// the terminal states.
type QueryState int32

const (
	_ QueryState = iota // zero-value is an invalid state

	// QueryStateInitialized is the state of a query that has been built but
	// not read from yet.
	QueryStateInitialized
	// QueryStateRunning is the state of a query whose pipeline is being
	// consumed.
	QueryStateRunning
	// QueryStateCompleted is the state of a query that was drained to EOF.
	QueryStateCompleted
	// QueryStateFailed is the state of a query that stopped with an error.
	QueryStateFailed
	// QueryStateCancelled is the state of a query that was closed or whose
	// context ended before it completed.
	QueryStateCancelled
)

// String returns a human-readable representation of the query state.
func (s QueryState) String() string {
	switch s {
	case QueryStateInitialized:
		return "initialized"
	case QueryStateRunning:
		return "running"
	case QueryStateCompleted:
		return "completed"
	case QueryStateFailed:
		return "failed"
	case QueryStateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("QueryState(%d)", s)
}

// Terminal reports whether s is a final state. No transition leaves a
// terminal state.
func (s QueryState) Terminal() bool {
	switch s {
	case QueryStateCompleted, QueryStateFailed, QueryStateCancelled:
		return true
	}
	return false
}

// query tracks the identity and lifecycle of one executed plan. State
// transitions are compare-and-swap so concurrent readers and closers settle
// on exactly one terminal state.
type query struct {
	id    ulid.ULID
	state atomic.Int32
}

func newQuery() *query {
	q := &query{id: ulid.Make()}
	q.state.Store(int32(QueryStateInitialized))
	return q
}

func (q *query) State() QueryState { return QueryState(q.state.Load()) }

// start moves the query from initialized to running.
func (q *query) start() {
	q.state.CompareAndSwap(int32(QueryStateInitialized), int32(QueryStateRunning))
}

// finish moves the query into the given terminal state. It reports whether
// this call performed the transition; exactly one caller wins.
func (q *query) finish(to QueryState) bool {
	return q.state.CompareAndSwap(int32(QueryStateRunning), int32(to)) ||
		q.state.CompareAndSwap(int32(QueryStateInitialized), int32(to))
}

// QueryResult is the lazy result stream of an executed plan. Batches are
// produced on demand as the caller reads; nothing runs until the first Read.
//
// QueryResult must be closed once the caller is done with it, whether or not
// the stream was drained.
type QueryResult struct {
	query    *query
	pipeline executor.Pipeline
	span     trace.Span
	logger   log.Logger
	metrics  *metrics
	started  time.Time

	rows atomic.Int64
}

// ID returns the unique identifier assigned to the query.
func (r *QueryResult) ID() ulid.ULID { return r.query.id }

// State returns the current lifecycle state of the query.
func (r *QueryResult) State() QueryState { return r.query.State() }

// Read returns the next batch of the result stream. It returns
// [executor.EOF] once the stream is drained, after which the query is
// completed. Any other error moves the query into the failed or cancelled
// state and further reads return an error.
func (r *QueryResult) Read(ctx context.Context) (*record.Batch, error) {
	if state := r.query.State(); state.Terminal() {
		if state == QueryStateCompleted {
			return nil, executor.EOF
		}
		return nil, fmt.Errorf("query is %s", state)
	}
	r.query.start()

	batch, err := r.pipeline.Read(ctx)
	switch {
	case err == nil:
		r.rows.Add(int64(batch.NumRows()))
		return batch, nil

	case errors.Is(err, executor.EOF):
		r.finish(QueryStateCompleted, nil)
		return nil, executor.EOF

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.finish(QueryStateCancelled, err)
		return nil, err

	default:
		r.finish(QueryStateFailed, err)
		return nil, err
	}
}

// Collect drains the remaining stream into memory and returns its batches.
// The result is closed afterwards regardless of the outcome.
func (r *QueryResult) Collect(ctx context.Context) ([]*record.Batch, error) {
	defer r.Close()

	var batches []*record.Batch
	for {
		batch, err := r.Read(ctx)
		if err != nil {
			if errors.Is(err, executor.EOF) {
				return batches, nil
			}
			return batches, err
		}
		batches = append(batches, batch)
	}
}

// Close releases the resources held by the result. Closing a query that has
// not finished cancels it. Close is safe to call multiple times.
func (r *QueryResult) Close() {
	r.finish(QueryStateCancelled, nil)
	r.pipeline.Close()
}

// finish settles the query into a terminal state and emits the lifecycle
// side effects exactly once.
func (r *QueryResult) finish(state QueryState, err error) {
	if !r.query.finish(state) {
		return
	}

	duration := time.Since(r.started)
	r.metrics.queriesTotal.WithLabelValues(state.String()).Inc()
	r.metrics.executionSeconds.Observe(duration.Seconds())

	switch {
	case err != nil:
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		level.Warn(r.logger).Log("msg", "query finished", "state", state, "rows", r.rows.Load(), "duration", duration, "err", err)
	case state == QueryStateCancelled:
		r.span.SetStatus(codes.Error, "query cancelled")
		level.Debug(r.logger).Log("msg", "query finished", "state", state, "rows", r.rows.Load(), "duration", duration)
	default:
		r.span.SetStatus(codes.Ok, "")
		level.Debug(r.logger).Log("msg", "query finished", "state", state, "rows", r.rows.Load(), "duration", duration)
	}
	r.span.End()
}
