// Package executor turns physical plans into pull-based pipelines. Every plan
// node maps to a [Pipeline] that reads batches from its inputs, so execution
// is lazy and a query only does as much work as its consumer demands.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/cache"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/storage"
)

var tracer = otel.Tracer("pkg/engine/executor")

const (
	defaultBatchSize      = 1024
	defaultRowConcurrency = 8
)

type Config struct {
	// BatchSize caps the number of rows per batch emitted by table scans.
	BatchSize int64
	// RowConcurrency caps how many rows of a single batch invoke functions
	// concurrently.
	RowConcurrency int
	// Retry governs how failed function invocations are retried before the
	// query fails.
	Retry backoff.Config

	// Sources resolves the tables referenced by scan nodes.
	Sources *storage.Catalog
	// Registry resolves the functions referenced by call expressions.
	Registry functions.Registry
	// Cache memoizes the outputs of cache-eligible calls. Nil disables
	// result caching.
	Cache *cache.Cache
	// Stats receives per-batch observations of function latency,
	// selectivity, and cache behavior. Nil disables feedback.
	Stats *stats.Catalog
	// Admission caps concurrent function invocations across all queries
	// sharing it. Nil disables the cap.
	Admission *semaphore.Weighted
}

func Run(ctx context.Context, cfg Config, plan *physical.Plan, logger log.Logger) Pipeline {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RowConcurrency <= 0 {
		cfg.RowConcurrency = defaultRowConcurrency
	}
	if cfg.Retry == (backoff.Config{}) {
		cfg.Retry = backoff.Config{
			MinBackoff: 100 * time.Millisecond,
			MaxBackoff: time.Second,
			MaxRetries: 3,
		}
	}

	c := &Context{
		plan:      plan,
		batchSize: cfg.BatchSize,
		sources:   cfg.Sources,
		stats:     cfg.Stats,
		logger:    logger,
		evaluator: newExpressionEvaluator(&invoker{
			registry:       cfg.Registry,
			cache:          cfg.Cache,
			admission:      cfg.Admission,
			retry:          cfg.Retry,
			rowConcurrency: cfg.RowConcurrency,
			logger:         logger,
		}),
	}
	if plan == nil {
		return errorPipeline(ctx, errors.New("plan is nil"))
	}
	node, err := plan.Root()
	if err != nil {
		return errorPipeline(ctx, err)
	}
	return c.execute(ctx, node)
}

// Context is the execution context
type Context struct {
	batchSize int64

	logger    log.Logger
	plan      *physical.Plan
	evaluator expressionEvaluator
	sources   *storage.Catalog
	stats     *stats.Catalog
}

func (c *Context) execute(ctx context.Context, node physical.Node) Pipeline {
	children := c.plan.Children(node)
	inputs := make([]Pipeline, 0, len(children))
	for _, child := range children {
		inputs = append(inputs, c.execute(ctx, child))
	}

	switch n := node.(type) {
	case *physical.TableScan:
		// TableScan opens an iterator over the source to construct its
		// pipeline, so construction is deferred until the first read.
		return newLazyPipeline(func(ctx context.Context, _ []Pipeline) Pipeline {
			return tracePipeline("physical.TableScan", c.executeTableScan(ctx, n))
		}, inputs)

	case *physical.Limit:
		return tracePipeline("physical.Limit", c.executeLimit(ctx, n, inputs))
	case *physical.Filter:
		return tracePipeline("physical.Filter", c.executeFilter(ctx, n, inputs))
	case *physical.Projection:
		return tracePipeline("physical.Projection", c.executeProjection(ctx, n, inputs))
	case *physical.Apply:
		return tracePipeline("physical.Apply", c.executeApply(ctx, n, inputs))
	case *physical.Join:
		return tracePipeline("physical.Join", c.executeJoin(ctx, n, inputs))
	case *physical.Unnest:
		return tracePipeline("physical.Unnest", c.executeUnnest(ctx, n, inputs))
	default:
		return errorPipeline(ctx, fmt.Errorf("invalid node type: %T", node))
	}
}

func (c *Context) executeTableScan(ctx context.Context, node *physical.TableScan) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeTableScan", trace.WithAttributes(
		attribute.String("table", node.Table),
		attribute.Int("num_predicates", len(node.Predicates)),
	))
	defer span.End()

	if c.sources == nil {
		return errorPipeline(ctx, errors.New("no table catalog configured"))
	}

	source, ok := c.sources.Lookup(node.Table)
	if !ok {
		return errorPipeline(ctx, fmt.Errorf("unknown table %q", node.Table))
	}

	iter, err := source.Open(ctx)
	if err != nil {
		return errorPipeline(ctx, fmt.Errorf("opening table %q: %w", node.Table, err))
	}
	span.AddEvent("opened table iterator")

	return newTableScanPipeline(node, iter, c.evaluator, c.batchSize)
}

func (c *Context) executeLimit(ctx context.Context, limit *physical.Limit, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeLimit", trace.WithAttributes(
		attribute.Int("skip", int(limit.Skip)),
		attribute.Int("fetch", int(limit.Fetch)),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) > 1 {
		return errorPipeline(ctx, fmt.Errorf("limit expects exactly one input, got %d", len(inputs)))
	}

	return NewLimitPipeline(inputs[0], limit.Skip, limit.Fetch)
}

func (c *Context) executeFilter(ctx context.Context, filter *physical.Filter, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeFilter", trace.WithAttributes(
		attribute.Int("num_predicates", len(filter.Predicates)),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) > 1 {
		return errorPipeline(ctx, fmt.Errorf("filter expects exactly one input, got %d", len(inputs)))
	}

	return NewFilterPipeline(filter, inputs[0], c.evaluator, c.stats)
}

func (c *Context) executeProjection(ctx context.Context, proj *physical.Projection, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeProjection", trace.WithAttributes(
		attribute.Int("num_columns", len(proj.Columns)),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) > 1 {
		return errorPipeline(ctx, fmt.Errorf("projection expects exactly one input, got %d", len(inputs)))
	}

	p, err := NewProjectPipeline(inputs[0], proj)
	if err != nil {
		return errorPipeline(ctx, err)
	}
	return p
}

func (c *Context) executeApply(ctx context.Context, apply *physical.Apply, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeApply", trace.WithAttributes(
		attribute.String("binding", apply.Binding),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if apply.Call != nil {
		span.SetAttributes(attribute.Stringer("call", apply.Call))
	}

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) > 1 {
		return errorPipeline(ctx, fmt.Errorf("apply expects exactly one input, got %d", len(inputs)))
	}

	if apply.Call == nil {
		return errorPipeline(ctx, errors.New("apply node has no function call"))
	}

	// Prefetch the input so upstream batches are produced while this node
	// spends its time in function invocations.
	return NewApplyPipeline(apply, newPrefetchingPipeline(inputs[0]), c.evaluator, c.stats)
}

func (c *Context) executeJoin(ctx context.Context, join *physical.Join, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeJoin", trace.WithAttributes(
		attribute.Bool("has_condition", join.On != nil),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) != 2 {
		return errorPipeline(ctx, fmt.Errorf("join expects exactly two inputs, got %d", len(inputs)))
	}

	return NewJoinPipeline(join, inputs[0], inputs[1], c.evaluator, c.stats)
}

func (c *Context) executeUnnest(ctx context.Context, unnest *physical.Unnest, inputs []Pipeline) Pipeline {
	ctx, span := tracer.Start(ctx, "Context.executeUnnest", trace.WithAttributes(
		attribute.String("as", unnest.As),
		attribute.Int("num_inputs", len(inputs)),
	))
	defer span.End()

	if unnest.Column != nil {
		span.SetAttributes(attribute.Stringer("column", unnest.Column))
	}

	if len(inputs) == 0 {
		return emptyPipeline()
	}

	if len(inputs) > 1 {
		return errorPipeline(ctx, fmt.Errorf("unnest expects exactly one input, got %d", len(inputs)))
	}

	if unnest.Column == nil {
		return errorPipeline(ctx, errors.New("unnest node has no column"))
	}

	return NewUnnestPipeline(unnest, inputs[0])
}
