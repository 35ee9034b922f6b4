package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/cache"
	"github.com/muninndb/muninn/pkg/record"
)

// ErrStaleFunction is returned when a plan references a function whose
// registered version changed after the plan was built. Callers should
// re-plan the query against the current registry.
var ErrStaleFunction = errors.New("function version changed since planning")

// InvocationError wraps a failed function invocation with the signature of
// the function that failed.
type InvocationError struct {
	Signature functions.Signature
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking function %s: %s", e.Signature, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// callOutcome describes how a single function call was served.
type callOutcome struct {
	cacheProbe bool          // a cache lookup was made for the call
	ran        bool          // the function body actually ran
	latency    time.Duration // wall-clock time of the run, zero unless ran
}

// invoker executes function calls on behalf of pipelines. It resolves calls
// against the registry, serves cache-eligible calls through the result
// cache, bounds concurrent invocations with the shared admission semaphore,
// and retries failures within the configured backoff budget.
type invoker struct {
	registry       functions.Registry
	cache          *cache.Cache
	admission      *semaphore.Weighted
	retry          backoff.Config
	rowConcurrency int
	logger         log.Logger
}

// resolve returns the registered function for the call. The registered
// version must match the version the plan was built against, since cached
// outputs and statistics are keyed by it.
func (i *invoker) resolve(call *physical.FuncCallExpr) (functions.Function, error) {
	if i.registry == nil {
		return nil, &InvocationError{Signature: call.Signature, Err: errors.New("no function registry configured")}
	}
	fn, ok := i.registry.Lookup(call.Signature.Name)
	if !ok {
		return nil, &InvocationError{Signature: call.Signature, Err: errors.New("function is not registered")}
	}
	if fn.Signature() != call.Signature {
		return nil, &InvocationError{
			Signature: call.Signature,
			Err:       fmt.Errorf("%w: registry now has %s", ErrStaleFunction, fn.Signature()),
		}
	}
	return fn, nil
}

// invokeRows evaluates the call once per argument row and returns one result
// per row, in row order. Rows are invoked concurrently up to the configured
// row concurrency; the first failure aborts the remaining rows.
func (i *invoker) invokeRows(ctx context.Context, call *physical.FuncCallExpr, rows [][]record.Value, obs *observations) ([]record.Value, error) {
	fn, err := i.resolve(call)
	if err != nil {
		return nil, err
	}

	limit := i.rowConcurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]record.Value, len(rows))

	var mtx sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for idx, args := range rows {
		g.Go(func() error {
			val, outcome, err := i.invokeOne(ctx, fn, call, args)
			if err != nil {
				return err
			}
			results[idx] = val

			mtx.Lock()
			obs.observeCall(call.Signature, outcome)
			mtx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invokeOne serves a single call, through the result cache when the call is
// eligible and a cache is configured.
func (i *invoker) invokeOne(ctx context.Context, fn functions.Function, call *physical.FuncCallExpr, args []record.Value) (record.Value, callOutcome, error) {
	if call.CacheEligible && i.cache != nil {
		key, err := cache.KeyFor(call.Signature, args)
		if err != nil {
			level.Debug(i.logger).Log("msg", "could not fingerprint arguments, bypassing cache", "function", call.Signature, "err", err)
		} else {
			// The compute closure may run on a goroutine detached from this
			// call, so it reports back through atomics.
			var (
				ran     atomic.Bool
				latency atomic.Duration
			)
			val, err := i.cache.GetOrCompute(ctx, key, func(ctx context.Context) (record.Value, error) {
				ran.Store(true)
				start := time.Now()
				v, callErr := i.call(ctx, fn, args)
				latency.Store(time.Since(start))
				return v, callErr
			})
			outcome := callOutcome{cacheProbe: true, ran: ran.Load(), latency: latency.Load()}
			return val, outcome, err
		}
	}

	start := time.Now()
	val, err := i.call(ctx, fn, args)
	return val, callOutcome{ran: true, latency: time.Since(start)}, err
}

// call invokes the function, retrying failed attempts within the backoff
// budget. An exhausted budget returns an [InvocationError] wrapping the last
// failure.
func (i *invoker) call(ctx context.Context, fn functions.Function, args []record.Value) (record.Value, error) {
	var lastErr error
	retry := backoff.New(ctx, i.retry)
	for retry.Ongoing() {
		val, err := i.attempt(ctx, fn, args)
		if err == nil {
			return val, nil
		}
		lastErr = err
		level.Warn(i.logger).Log("msg", "function invocation failed", "function", fn.Signature(), "attempt", retry.NumRetries()+1, "err", err)
		retry.Wait()
	}
	if lastErr == nil {
		lastErr = retry.Err()
	}
	return record.Value{}, &InvocationError{Signature: fn.Signature(), Err: lastErr}
}

// attempt makes a single invocation, holding an admission slot for its
// duration. The slot is not held across backoff waits.
func (i *invoker) attempt(ctx context.Context, fn functions.Function, args []record.Value) (record.Value, error) {
	if i.admission != nil {
		if err := i.admission.Acquire(ctx, 1); err != nil {
			return record.Value{}, err
		}
		defer i.admission.Release(1)
	}
	return fn.Invoke(ctx, args)
}
