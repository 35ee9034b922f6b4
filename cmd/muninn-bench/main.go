// Command muninn-bench runs a synthetic inference workload against an
// embedded engine and reports how much work the result cache and the
// predicate reordering save.
//
// The workload scans a corpus of generated documents and filters them with
// two simulated models: an expensive spam classifier and a cheap sentiment
// scorer. Both are deterministic on their input, so repeated queries exercise
// the cache, and their different latencies and selectivities give the
// optimizer a reason to reorder the conjunction once statistics come in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/atomic"

	"github.com/muninndb/muninn/pkg/engine"
	"github.com/muninndb/muninn/pkg/engine/planner/logical"
	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/cache"
	"github.com/muninndb/muninn/pkg/record"
	"github.com/muninndb/muninn/pkg/storage"
)

type config struct {
	rows             int
	distinctTexts    int
	queries          int
	classifyLatency  time.Duration
	sentimentLatency time.Duration
	spamShare        float64
	storePath        string
	seed             int64
	verbose          bool
}

func main() {
	cfg := &config{}
	flag.IntVar(&cfg.rows, "rows", 2000, "Number of synthetic documents scanned per query")
	flag.IntVar(&cfg.distinctTexts, "distinct", 200, "Number of distinct document texts, lower means more cache reuse")
	flag.IntVar(&cfg.queries, "queries", 8, "Number of queries to run")
	flag.DurationVar(&cfg.classifyLatency, "classify-latency", 4*time.Millisecond, "Simulated per-call latency of the classify model")
	flag.DurationVar(&cfg.sentimentLatency, "sentiment-latency", time.Millisecond, "Simulated per-call latency of the sentiment model")
	flag.Float64Var(&cfg.spamShare, "spam-share", 0.25, "Fraction of texts the classify model labels spam")
	flag.StringVar(&cfg.storePath, "store", "", "Path to a bbolt file persisting results and statistics across runs")
	flag.Int64Var(&cfg.seed, "seed", 1, "Seed for generating the synthetic corpus")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Log engine internals to stderr")
	flag.Parse()

	if cfg.rows <= 0 {
		log.Fatal("rows must be greater than 0")
	}
	if cfg.distinctTexts <= 0 || cfg.distinctTexts > cfg.rows {
		log.Fatal("distinct must be in the range [1, rows]")
	}
	if cfg.queries <= 0 {
		log.Fatal("queries must be greater than 0")
	}
	if cfg.spamShare <= 0 || cfg.spamShare > 1 {
		log.Fatal("spam-share must be in the range (0, 1]")
	}

	if err := runBenchmark(cfg); err != nil {
		log.Fatal(err)
	}
}

func runBenchmark(cfg *config) error {
	logger := kitlog.NewNopLogger()
	if cfg.verbose {
		logger = level.NewFilter(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr)), level.AllowDebug())
	}
	reg := prometheus.NewRegistry()

	sources, err := buildCorpus(cfg)
	if err != nil {
		return fmt.Errorf("building corpus: %w", err)
	}

	var classifyCalls, sentimentCalls atomic.Int64
	classify := newClassify(cfg, &classifyCalls)
	sentiment := newSentiment(cfg, &sentimentCalls)

	registry := functions.NewMapRegistry()
	for _, fn := range []functions.Function{classify, sentiment} {
		if _, _, err := registry.Register(fn); err != nil {
			return fmt.Errorf("registering %s: %w", fn.Signature(), err)
		}
	}

	params := engine.Params{
		Logger:     logger,
		Registerer: reg,
		Sources:    sources,
		Registry:   registry,
	}
	flagext.DefaultValues(&params.Config)
	if cfg.storePath != "" {
		// The engine owns the store from here on and closes it on Stop.
		store, err := cache.NewBoltStore(cfg.storePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		params.Store = store
	}

	eng, err := engine.New(params)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "stopping engine: %v\n", err)
		}
	}()

	plan, err := workload().ToPlan()
	if err != nil {
		return fmt.Errorf("building workload plan: %w", err)
	}

	fmt.Printf("muninn-bench: %s documents, %s distinct texts, %d queries\n",
		humanize.Comma(int64(cfg.rows)), humanize.Comma(int64(cfg.distinctTexts)), cfg.queries)
	fmt.Printf("models: classify %s/call (spam share %.2f), sentiment %s/call\n",
		cfg.classifyLatency, cfg.spamShare, cfg.sentimentLatency)

	ctx := context.Background()
	for i := 0; i < cfg.queries; i++ {
		physicalPlan, err := eng.Optimize(ctx, plan)
		if err != nil {
			return fmt.Errorf("optimizing query %d: %w", i+1, err)
		}
		if i == 0 {
			fmt.Printf("\ninitial plan:\n%s\n", physical.PrintAsTree(physicalPlan))
		}

		start := time.Now()
		res, err := eng.Execute(ctx, physicalPlan)
		if err != nil {
			return fmt.Errorf("executing query %d: %w", i+1, err)
		}
		batches, err := res.Collect(ctx)
		if err != nil {
			return fmt.Errorf("running query %d: %w", i+1, err)
		}

		var rows int
		for _, batch := range batches {
			rows += batch.NumRows()
		}
		fmt.Printf("query %d: %d rows in %s (classify calls: %d, sentiment calls: %d)\n",
			i+1, rows, time.Since(start).Round(time.Millisecond),
			classifyCalls.Swap(0), sentimentCalls.Swap(0))

		if i == cfg.queries-1 {
			// Replanned against the learned statistics. With the defaults the
			// cheap selective term has moved ahead of the expensive one.
			finalPlan, err := eng.Optimize(ctx, plan)
			if err != nil {
				return fmt.Errorf("replanning: %w", err)
			}
			fmt.Printf("\nplan after %d queries:\n%s\n", cfg.queries, physical.PrintAsTree(finalPlan))
		}
	}

	printStatistics(eng, classify.Signature(), sentiment.Signature())
	return printCacheReport(reg)
}

// workload is the benchmark query: keep spam documents with calm sentiment.
// Both terms sit in one conjunction so the optimizer is free to order them.
// The expensive classifier is written first; once statistics are learned the
// optimizer should move the cheaper and more selective sentiment term ahead.
func workload() *logical.Builder {
	text := logical.NewColumnRef("text", logical.ColumnTypeTable)

	spam := &logical.BinOp{
		Left:  &logical.FuncCall{Function: "classify", Args: []logical.Value{text}},
		Right: logical.NewLiteral("spam"),
		Op:    logical.BinaryOpEq,
	}
	calm := &logical.BinOp{
		Left:  &logical.FuncCall{Function: "sentiment", Args: []logical.Value{text}},
		Right: logical.NewLiteral(0.5),
		Op:    logical.BinaryOpLt,
	}

	return logical.NewBuilder(&logical.MakeTable{Table: "documents"}).
		Select(&logical.BinOp{Left: spam, Right: calm, Op: logical.BinaryOpAnd}).
		Project([]logical.ProjectedColumn{
			{Column: logical.NewColumnRef("id", logical.ColumnTypeTable)},
		})
}

func buildCorpus(cfg *config) (*storage.Catalog, error) {
	schema := record.NewSchema(
		record.ColumnSchema{Name: "id", Type: record.ValueTypeInt},
		record.ColumnSchema{Name: "text", Type: record.ValueTypeStr},
	)

	rnd := rand.New(rand.NewSource(cfg.seed))
	rows := make([]record.Row, cfg.rows)
	for i := range rows {
		text := fmt.Sprintf("synthetic document %d", rnd.Intn(cfg.distinctTexts))
		rows[i] = record.Row{record.Int(int64(i)), record.Str(text)}
	}

	source, err := storage.NewMemSource("documents", schema, rows)
	if err != nil {
		return nil, err
	}

	catalog := storage.NewCatalog()
	if err := catalog.Register(source); err != nil {
		return nil, err
	}
	return catalog, nil
}

// newClassify builds the simulated spam classifier. Its version token derives
// from every knob that changes its output, so a run with different settings
// does not reuse stale persisted results.
func newClassify(cfg *config, calls *atomic.Int64) functions.Function {
	version := functions.Checksum("classify",
		cfg.classifyLatency.String(),
		strconv.FormatFloat(cfg.spamShare, 'f', -1, 64),
	)
	return functions.New("classify", version, true, func(_ context.Context, args []record.Value) (record.Value, error) {
		calls.Inc()
		time.Sleep(cfg.classifyLatency)
		if args[0].Type() != record.ValueTypeStr {
			return record.Value{}, fmt.Errorf("classify expects a string, got %s", args[0].Type())
		}
		if fraction("classify", args[0].Str()) < cfg.spamShare {
			return record.Str("spam"), nil
		}
		return record.Str("ham"), nil
	})
}

// newSentiment builds the simulated sentiment scorer, returning a stable
// score in [0, 1) per text.
func newSentiment(cfg *config, calls *atomic.Int64) functions.Function {
	version := functions.Checksum("sentiment", cfg.sentimentLatency.String())
	return functions.New("sentiment", version, true, func(_ context.Context, args []record.Value) (record.Value, error) {
		calls.Inc()
		time.Sleep(cfg.sentimentLatency)
		if args[0].Type() != record.ValueTypeStr {
			return record.Value{}, fmt.Errorf("sentiment expects a string, got %s", args[0].Type())
		}
		return record.Float(fraction("sentiment", args[0].Str())), nil
	})
}

// fraction maps a text to a stable pseudo-random fraction in [0, 1). The salt
// keeps the two models uncorrelated on the same input.
func fraction(salt, text string) float64 {
	h := xxhash.Sum64String(salt + "\x00" + text)
	return float64(h%100000) / 100000
}

func printStatistics(eng *engine.Engine, sigs ...functions.Signature) {
	fmt.Println("learned statistics:")
	for _, sig := range sigs {
		est := eng.Stats().Estimate(sig)
		fmt.Printf("  %-60s latency=%s selectivity=%.3f cache_hit_rate=%.3f samples=%d\n",
			sig, est.Latency.Round(10*time.Microsecond), est.Selectivity, est.CacheHitRate, est.Samples)
	}
}

func printCacheReport(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	byName := make(map[string]float64, len(families))
	for _, mf := range families {
		if len(mf.GetMetric()) != 1 {
			continue
		}
		m := mf.GetMetric()[0]
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			byName[mf.GetName()] = m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			byName[mf.GetName()] = m.GetGauge().GetValue()
		}
	}

	var (
		hits      = byName["muninn_function_cache_hits_total"]
		misses    = byName["muninn_function_cache_misses_total"]
		storeHits = byName["muninn_function_cache_store_hits_total"]
		shared    = byName["muninn_function_cache_shared_waits_total"]
		entries   = byName["muninn_function_cache_entries"]
		memory    = byName["muninn_function_cache_memory_bytes"]
		evictions = byName["muninn_function_cache_evictions_total"]
	)

	fmt.Println("\nresult cache:")
	fmt.Printf("  lookups=%s hits=%s store_hits=%s shared_waits=%s\n",
		comma(hits+misses), comma(hits), comma(storeHits), comma(shared))
	fmt.Printf("  entries=%s memory=%s evictions=%s\n",
		comma(entries), humanize.IBytes(uint64(memory)), comma(evictions))
	if lookups := hits + misses; lookups > 0 {
		fmt.Printf("  %.1f%% of invocations were served from cache\n", 100*(hits+storeHits)/lookups)
	}
	return nil
}

func comma(v float64) string { return humanize.Comma(int64(v)) }
