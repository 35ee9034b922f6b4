package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/muninndb/muninn/pkg/engine/internal/types"
	"github.com/muninndb/muninn/pkg/engine/planner/logical"
	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/cache"
	"github.com/muninndb/muninn/pkg/functions/stats"
	"github.com/muninndb/muninn/pkg/record"
	"github.com/muninndb/muninn/pkg/storage"
)

func docsSchema() record.Schema {
	return record.NewSchema(
		record.ColumnSchema{Name: "id", Type: record.ValueTypeInt},
		record.ColumnSchema{Name: "text", Type: record.ValueTypeStr},
	)
}

func docsRow(id int64, text string) record.Row {
	return record.Row{record.Int(id), record.Str(text)}
}

func docsBatch(rows ...record.Row) *record.Batch {
	batch := record.NewBatch(docsSchema(), len(rows))
	batch.Rows = append(batch.Rows, rows...)
	return batch
}

// dogCatRows returns n rows alternating between "dog" on even and "cat" on
// odd ids.
func dogCatRows(n int) []record.Row {
	rows := make([]record.Row, n)
	for i := range rows {
		text := "cat"
		if i%2 == 0 {
			text = "dog"
		}
		rows[i] = docsRow(int64(i), text)
	}
	return rows
}

// bufferPipeline yields preset batches in order, then EOF. It records how
// many batches were read and whether it was closed.
type bufferPipeline struct {
	batches []*record.Batch
	next    int
	closed  bool
}

func newBufferPipeline(batches ...*record.Batch) *bufferPipeline {
	return &bufferPipeline{batches: batches}
}

func (p *bufferPipeline) Read(ctx context.Context) (*record.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.next >= len(p.batches) {
		return nil, EOF
	}
	batch := p.batches[p.next]
	p.next++
	return batch, nil
}

func (p *bufferPipeline) Close() { p.closed = true }

func colExpr(name string) *physical.ColumnExpr {
	return &physical.ColumnExpr{Ref: types.ColumnRef{Column: name, Type: types.ColumnTypeTable}}
}

func callExpr(name string, eligible bool, args ...physical.Expression) *physical.FuncCallExpr {
	return &physical.FuncCallExpr{
		Signature:     functions.Signature{Name: name, Version: "v1"},
		Args:          args,
		CacheEligible: eligible,
	}
}

func testRegistry(t *testing.T, fns ...functions.Function) *functions.MapRegistry {
	t.Helper()
	registry := functions.NewMapRegistry()
	for _, fn := range fns {
		_, _, err := registry.Register(fn)
		require.NoError(t, err)
	}
	return registry
}

// echoFunc returns its first argument and counts invocations.
func echoFunc(name string, invocations *atomic.Int64) functions.Function {
	return functions.New(name, "v1", true, func(_ context.Context, args []record.Value) (record.Value, error) {
		if invocations != nil {
			invocations.Inc()
		}
		return args[0], nil
	})
}

func fastRetry() backoff.Config {
	return backoff.Config{
		MinBackoff: time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		MaxRetries: 3,
	}
}

func testInvoker(registry functions.Registry, c *cache.Cache) *invoker {
	return &invoker{
		registry:       registry,
		cache:          c,
		retry:          fastRetry(),
		rowConcurrency: 4,
		logger:         log.NewNopLogger(),
	}
}

func testEvaluator(registry functions.Registry, c *cache.Cache) expressionEvaluator {
	return newExpressionEvaluator(testInvoker(registry, c))
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{MaxSizeBytes: "1MB", Retry: fastRetry()}, nil, log.NewNopLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

// drain reads the pipeline until EOF and returns all rows.
func drain(t *testing.T, p Pipeline) []record.Row {
	t.Helper()

	var rows []record.Row
	for {
		batch, err := p.Read(t.Context())
		if errors.Is(err, EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, batch.Rows...)
	}
}

// ids extracts the first column of each row as an int64.
func ids(rows []record.Row) []int64 {
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = row[0].Int()
	}
	return out
}

func testSources(t *testing.T, rows []record.Row) *storage.Catalog {
	t.Helper()

	src, err := storage.NewMemSource("documents", docsSchema(), rows)
	require.NoError(t, err)
	sources := storage.NewCatalog()
	require.NoError(t, sources.Register(src))
	return sources
}

// buildPlan runs the logical plan through the physical planner against the
// given sources and registry.
func buildPlan(t *testing.T, b *logical.Builder, sources *storage.Catalog, registry functions.Registry) *physical.Plan {
	t.Helper()

	logicalPlan, err := b.ToPlan()
	require.NoError(t, err)

	planner := physical.NewPlanner(sources, registry, testStatsCatalog(t).Snapshot())
	plan, err := planner.Build(logicalPlan)
	require.NoError(t, err)
	plan, err = planner.Optimize(plan)
	require.NoError(t, err)
	return plan
}

func testStatsCatalog(t *testing.T) *stats.Catalog {
	t.Helper()
	catalog, err := stats.New(stats.Config{
		DecayWeight:        0.2,
		DefaultSelectivity: 0.5,
		UnknownLatency:     time.Second,
	})
	require.NoError(t, err)
	return catalog
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("scan filter limit", func(t *testing.T) {
		var invocations atomic.Int64
		registry := testRegistry(t, echoFunc("classify", &invocations))
		sources := testSources(t, dogCatRows(10))
		statsCatalog := testStatsCatalog(t)

		b := logical.NewBuilder(&logical.MakeTable{Table: "documents"}).
			Select(&logical.BinOp{
				Op: types.BinaryOpEq,
				Left: &logical.FuncCall{
					Function: "classify",
					Args:     []logical.Value{logical.NewColumnRef("text", types.ColumnTypeTable)},
				},
				Right: logical.NewLiteral("dog"),
			}).
			Select(&logical.BinOp{
				Op:    types.BinaryOpLt,
				Left:  logical.NewColumnRef("id", types.ColumnTypeTable),
				Right: logical.NewLiteral(int64(6)),
			}).
			Limit(0, 2)

		plan := buildPlan(t, b, sources, registry)

		pipeline := Run(t.Context(), Config{
			Retry:    fastRetry(),
			Sources:  sources,
			Registry: registry,
			Cache:    testCache(t),
			Stats:    statsCatalog,
		}, plan, log.NewNopLogger())
		defer pipeline.Close()

		rows := drain(t, pipeline)
		require.Equal(t, []int64{0, 2}, ids(rows))

		// Two distinct texts, so the cache limits computation to two calls.
		require.Equal(t, int64(2), invocations.Load())

		// Completed batches reported observations for the classify call.
		require.Equal(t, 1, statsCatalog.Len())
	})

	t.Run("apply binds function output", func(t *testing.T) {
		var invocations atomic.Int64
		registry := testRegistry(t, echoFunc("classify", &invocations))
		sources := testSources(t, dogCatRows(10))

		b := logical.NewBuilder(&logical.MakeTable{Table: "documents"}).
			Apply(&logical.FuncCall{
				Function: "classify",
				Args:     []logical.Value{logical.NewColumnRef("text", types.ColumnTypeTable)},
			}, "label").
			Select(&logical.BinOp{
				Op:    types.BinaryOpEq,
				Left:  logical.NewColumnRef("label", types.ColumnTypeBinding),
				Right: logical.NewLiteral("dog"),
			})

		plan := buildPlan(t, b, sources, registry)

		pipeline := Run(t.Context(), Config{
			Retry:    fastRetry(),
			Sources:  sources,
			Registry: registry,
			Cache:    testCache(t),
		}, plan, log.NewNopLogger())
		defer pipeline.Close()

		rows := drain(t, pipeline)
		require.Equal(t, []int64{0, 2, 4, 6, 8}, ids(rows))
		for _, row := range rows {
			require.Len(t, row, 3)
			require.Equal(t, "dog", row[2].Str())
		}
		require.Equal(t, int64(2), invocations.Load())
	})

	t.Run("projection renames", func(t *testing.T) {
		sources := testSources(t, dogCatRows(4))

		b := logical.NewBuilder(&logical.MakeTable{Table: "documents"}).
			Project([]logical.ProjectedColumn{
				{Column: logical.NewColumnRef("text", types.ColumnTypeTable), As: "body"},
			})

		plan := buildPlan(t, b, sources, testRegistry(t))

		pipeline := Run(t.Context(), Config{Sources: sources, Registry: testRegistry(t)}, plan, log.NewNopLogger())
		defer pipeline.Close()

		batch, err := pipeline.Read(t.Context())
		require.NoError(t, err)
		require.Equal(t, []record.ColumnSchema{{Name: "body", Type: record.ValueTypeStr}}, batch.Schema.Columns)
		require.Len(t, batch.Rows, 4)
		require.Len(t, batch.Rows[0], 1)
	})

	t.Run("nil plan", func(t *testing.T) {
		pipeline := Run(t.Context(), Config{}, nil, log.NewNopLogger())
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.ErrorContains(t, err, "failed to execute pipeline")
		require.ErrorContains(t, err, "plan is nil")
	})

	t.Run("plan without root", func(t *testing.T) {
		pipeline := Run(t.Context(), Config{}, &physical.Plan{}, log.NewNopLogger())
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.ErrorContains(t, err, "plan has no root node")
	})

	t.Run("unknown table surfaces on first read", func(t *testing.T) {
		sources := testSources(t, dogCatRows(4))
		b := logical.NewBuilder(&logical.MakeTable{Table: "documents"})
		plan := buildPlan(t, b, sources, testRegistry(t))

		// The plan references a table the executing catalog does not have.
		// Construction succeeds because scans open lazily.
		pipeline := Run(t.Context(), Config{Sources: storage.NewCatalog(), Registry: testRegistry(t)}, plan, log.NewNopLogger())
		defer pipeline.Close()

		_, err := pipeline.Read(t.Context())
		require.ErrorContains(t, err, `unknown table "documents"`)
	})
}
