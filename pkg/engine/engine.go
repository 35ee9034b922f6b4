// Package engine ties planning and execution together into an embeddable
// query engine. An [Engine] optimizes logical plans into physical plans using
// the statistics it accumulates, executes them against registered sources and
// functions, and feeds per-batch observations back into its statistics
// catalog so later plans improve.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/muninndb/muninn/pkg/engine/executor"
	"github.com/muninndb/muninn/pkg/engine/planner/logical"
	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/cache"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/storage"
)

var tracer = otel.Tracer("pkg/engine")

// ErrStopped is returned by operations on an engine after Stop was called.
var ErrStopped = errors.New("engine is stopped")

// Config configures an [Engine].
type Config struct {
	// BatchSize is the maximum number of rows per batch produced by table
	// scans.
	BatchSize int `yaml:"batch_size"`

	// RowConcurrency caps concurrent function invocations within a single
	// batch.
	RowConcurrency int `yaml:"row_concurrency"`

	// MaxConcurrentInvocations caps concurrent function invocations across
	// all queries of the engine. 0 disables the cap.
	MaxConcurrentInvocations int64 `yaml:"max_concurrent_invocations"`

	// OptimizeTimeout bounds how long planning a single query may take.
	// 0 disables the bound.
	OptimizeTimeout time.Duration `yaml:"optimize_timeout"`

	// PlanCacheSize is the number of optimized plans kept keyed by plan and
	// statistics fingerprint. 0 disables the plan cache.
	PlanCacheSize int `yaml:"plan_cache_size"`

	// Retry governs how failed function invocations are retried before a
	// query fails.
	Retry backoff.Config `yaml:"retry"`

	// Cache configures the function result cache.
	Cache cache.Config `yaml:"cache"`

	// Stats configures the function statistics catalog.
	Stats stats.Config `yaml:"stats"`
}

// RegisterFlags registers flags for the engine config with the prefix
// "engine.".
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("engine.", f)
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.BatchSize, prefix+"batch-size", 1024, "Maximum number of rows per batch produced by table scans.")
	f.IntVar(&cfg.RowConcurrency, prefix+"row-concurrency", 8, "Maximum concurrent function invocations within a single batch.")
	f.Int64Var(&cfg.MaxConcurrentInvocations, prefix+"max-concurrent-invocations", 64, "Maximum concurrent function invocations across all queries. 0 to disable the cap.")
	f.DurationVar(&cfg.OptimizeTimeout, prefix+"optimize-timeout", 5*time.Second, "Maximum duration of planning a single query. 0 to disable the bound.")
	f.IntVar(&cfg.PlanCacheSize, prefix+"plan-cache-size", 256, "Number of optimized plans kept keyed by plan and statistics fingerprint. 0 to disable the plan cache.")
	cfg.Retry.RegisterFlagsWithPrefix(prefix+"retry", f)
	cfg.Cache.RegisterFlagsWithPrefix(prefix+"cache.", f)
	cfg.Stats.RegisterFlagsWithPrefix(prefix+"stats.", f)
}

// Validate validates the config.
func (cfg *Config) Validate() error {
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size, must be greater than 0, got %d", cfg.BatchSize)
	}
	if cfg.RowConcurrency <= 0 {
		return fmt.Errorf("invalid row concurrency, must be greater than 0, got %d", cfg.RowConcurrency)
	}
	if cfg.MaxConcurrentInvocations < 0 {
		return fmt.Errorf("invalid max concurrent invocations, must not be negative, got %d", cfg.MaxConcurrentInvocations)
	}
	if cfg.OptimizeTimeout < 0 {
		return fmt.Errorf("invalid optimize timeout, must not be negative, got %s", cfg.OptimizeTimeout)
	}
	if cfg.PlanCacheSize < 0 {
		return fmt.Errorf("invalid plan cache size, must not be negative, got %d", cfg.PlanCacheSize)
	}
	if err := cfg.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}
	if err := cfg.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}
	return nil
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config Config // Config for the Engine.

	Sources  *storage.Catalog   // Sources resolves the tables queries scan.
	Registry functions.Registry // Registry resolves the functions queries invoke.

	// Store optionally mirrors cached function results and statistics to a
	// persistent store, so both survive restarts. Nil keeps everything in
	// memory only.
	Store cache.Store
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	if p.Sources == nil {
		return errors.New("a table catalog is required")
	}
	if p.Registry == nil {
		return errors.New("a function registry is required")
	}
	return p.Config.Validate()
}

// Engine defines parameters for optimizing and executing queries.
type Engine struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics

	sources  *storage.Catalog   // Sources to resolve scanned tables from.
	registry functions.Registry // Registry to resolve invoked functions from.

	stats     *stats.Catalog      // Statistics the optimizer plans against.
	cache     *cache.Cache        // Result cache shared by all queries.
	store     cache.Store         // Optional persistent mirror, may be nil.
	admission *semaphore.Weighted // Invocation cap shared by all queries, may be nil.

	planCache *lru.Cache[planCacheKey, *physical.Plan] // May be nil.

	stopped atomic.Bool
}

// planCacheKey identifies an optimized plan by the logical plan it came from
// and the statistics snapshot it was optimized against. A statistics change
// invalidates cached plans by changing the key, not by purging.
type planCacheKey struct {
	plan     uint64
	snapshot uint64
}

// New creates a new Engine.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	statsCatalog, err := stats.New(params.Config.Stats)
	if err != nil {
		return nil, fmt.Errorf("creating statistics catalog: %w", err)
	}
	if params.Store != nil {
		if err := statsCatalog.LoadFrom(params.Store); err != nil {
			level.Warn(params.Logger).Log("msg", "could not load persisted statistics", "err", err)
		} else {
			level.Debug(params.Logger).Log("msg", "loaded persisted statistics", "functions", statsCatalog.Len())
		}
	}

	// Result writes go through a background write-back queue. Statistics keep
	// using the store directly, so the flush on Stop is synchronous.
	resultStore := params.Store
	if resultStore != nil {
		resultStore = cache.NewBackgroundStore(params.Config.Cache.Background, resultStore, params.Logger, params.Registerer)
	}
	resultCache, err := cache.New(params.Config.Cache, resultStore, params.Logger, params.Registerer)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	e := &Engine{
		cfg:     params.Config,
		logger:  params.Logger,
		metrics: newMetrics(params.Registerer),

		sources:  params.Sources,
		registry: params.Registry,

		stats: statsCatalog,
		cache: resultCache,
		store: params.Store,
	}

	if params.Config.MaxConcurrentInvocations > 0 {
		e.admission = semaphore.NewWeighted(params.Config.MaxConcurrentInvocations)
	}
	if params.Config.PlanCacheSize > 0 {
		e.planCache, err = lru.New[planCacheKey, *physical.Plan](params.Config.PlanCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating plan cache: %w", err)
		}
	}

	return e, nil
}

// Stats returns the statistics catalog the engine plans against. Callers may
// snapshot it or seed it with prior observations.
func (e *Engine) Stats() *stats.Catalog { return e.stats }

// Cache returns the function result cache shared by the engine's queries.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Optimize turns a logical plan into an executable physical plan using the
// current statistics snapshot. Plans are cached by plan and snapshot
// fingerprint, so optimizing the same plan against unchanged statistics does
// not replan.
func (e *Engine) Optimize(ctx context.Context, logicalPlan *logical.Plan) (*physical.Plan, error) {
	ctx, span := tracer.Start(ctx, "Engine.Optimize")
	defer span.End()

	if e.stopped.Load() {
		return nil, ErrStopped
	}
	if logicalPlan == nil {
		return nil, errors.New("logical plan is nil")
	}

	timer := prometheus.NewTimer(e.metrics.planningSeconds)
	defer timer.ObserveDuration()

	snapshot := e.stats.Snapshot()

	var key planCacheKey
	if e.planCache != nil {
		key = planCacheKey{plan: logicalPlan.Fingerprint(), snapshot: snapshot.Fingerprint()}
		if plan, ok := e.planCache.Get(key); ok {
			e.metrics.planCacheHitsTotal.Inc()
			span.AddEvent("plan cache hit")
			return plan, nil
		}
		e.metrics.planCacheMissesTotal.Inc()
	}

	plan, err := e.buildPhysicalPlan(ctx, logicalPlan, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create physical plan")
		return nil, err
	}

	if e.planCache != nil {
		e.planCache.Add(key, plan)
	}
	return plan, nil
}

// buildPhysicalPlan builds and optimizes a physical plan from the given
// logical plan, bounded by the configured optimization timeout.
func (e *Engine) buildPhysicalPlan(ctx context.Context, logicalPlan *logical.Plan, snapshot *stats.Snapshot) (*physical.Plan, error) {
	if e.cfg.OptimizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.OptimizeTimeout)
		defer cancel()
	}

	type result struct {
		plan *physical.Plan
		err  error
	}

	// Planning is CPU-bound and does not block, so the timeout abandons the
	// planning goroutine rather than interrupting it. The buffered channel
	// lets an abandoned goroutine finish its send and exit.
	done := make(chan result, 1)
	go func() {
		start := time.Now()
		planner := physical.NewPlanner(e.sources, e.registry, snapshot)

		plan, err := planner.Build(logicalPlan)
		if err == nil {
			plan, err = planner.Optimize(plan)
		}
		if err == nil {
			level.Debug(e.logger).Log(
				"msg", "finished physical planning",
				"plan", physical.PrintAsTree(plan),
				"duration", time.Since(start).String(),
			)
		}
		done <- result{plan, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("planning: %w", context.Cause(ctx))
	case res := <-done:
		return res.plan, res.err
	}
}

// Execute starts executing the given physical plan and returns its lazy
// result stream. Nothing is read from the underlying sources until the first
// call to [QueryResult.Read].
func (e *Engine) Execute(ctx context.Context, plan *physical.Plan) (*QueryResult, error) {
	if e.stopped.Load() {
		return nil, ErrStopped
	}
	if plan == nil {
		return nil, errors.New("physical plan is nil")
	}

	q := newQuery()
	ctx, span := tracer.Start(ctx, "Engine.Execute", trace.WithAttributes(
		attribute.Stringer("query_id", q.id),
		attribute.Int("plan_nodes", plan.Len()),
	))

	logger := log.With(e.logger, "query_id", q.id)
	level.Debug(logger).Log("msg", "starting query")

	pipeline := executor.Run(ctx, executor.Config{
		BatchSize:      int64(e.cfg.BatchSize),
		RowConcurrency: e.cfg.RowConcurrency,
		Retry:          e.cfg.Retry,

		Sources:   e.sources,
		Registry:  e.registry,
		Cache:     e.cache,
		Stats:     e.stats,
		Admission: e.admission,
	}, plan, logger)

	e.metrics.queriesStartedTotal.Inc()
	return &QueryResult{
		query:    q,
		pipeline: pipeline,
		span:     span,
		logger:   logger,
		metrics:  e.metrics,
		started:  time.Now(),
	}, nil
}

// Run optimizes and executes a logical plan in one call.
func (e *Engine) Run(ctx context.Context, logicalPlan *logical.Plan) (*QueryResult, error) {
	plan, err := e.Optimize(ctx, logicalPlan)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, plan)
}

// Stop flushes accumulated statistics to the persistent store, if one is
// configured, and stops the result cache. The engine must not be used after
// Stop returns. Stop is safe to call multiple times.
func (e *Engine) Stop() error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	errs := multierror.New()
	if e.store != nil {
		if err := e.stats.FlushTo(e.store); err != nil {
			errs.Add(fmt.Errorf("flushing statistics: %w", err))
		}
	}

	// Stopping the cache drains in-flight computations and stops the
	// persistent store, so statistics must flush first.
	e.cache.Stop()

	return errs.Err()
}
