// Package stats maintains per-function runtime statistics used by the
// cost-based optimizer: invocation latency, predicate selectivity, and cache
// hit rate. Statistics are observed once per executed batch and folded into
// exponentially weighted moving averages, so recent workload behavior
// dominates while a single outlier batch cannot erase history.
package stats

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/util/ewma"
)

// Config configures a statistics [Catalog].
type Config struct {
	// DecayWeight is the EWMA weight applied to each new batch observation.
	DecayWeight float64 `yaml:"decay_weight"`

	// DefaultSelectivity is assumed for functions without any selectivity
	// observations.
	DefaultSelectivity float64 `yaml:"default_selectivity"`

	// UnknownLatency is assumed for functions without any latency
	// observations. It is deliberately high so that unobserved functions are
	// ordered last within a conjunction.
	UnknownLatency time.Duration `yaml:"unknown_latency"`
}

// RegisterFlagsWithPrefix registers flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Float64Var(&cfg.DecayWeight, prefix+"decay-weight", 0.2, "Weight of each new batch observation in the moving averages. Must be in the range (0, 1].")
	f.Float64Var(&cfg.DefaultSelectivity, prefix+"default-selectivity", 0.5, "Selectivity assumed for functions without observations.")
	f.DurationVar(&cfg.UnknownLatency, prefix+"unknown-latency", time.Second, "Per-invocation latency assumed for functions without observations.")
}

// Validate validates the config.
func (cfg *Config) Validate() error {
	if cfg.DecayWeight <= 0 || cfg.DecayWeight > 1 {
		return fmt.Errorf("invalid decay weight %f: must be in the range (0, 1]", cfg.DecayWeight)
	}
	if cfg.DefaultSelectivity <= 0 || cfg.DefaultSelectivity > 1 {
		return fmt.Errorf("invalid default selectivity %f: must be in the range (0, 1]", cfg.DefaultSelectivity)
	}
	if cfg.UnknownLatency <= 0 {
		return fmt.Errorf("invalid unknown latency %s: must be greater than 0", cfg.UnknownLatency)
	}
	return nil
}

// BatchObservation summarizes the work done for one function across one
// executed batch. Observations are reported once per batch, never per row.
type BatchObservation struct {
	// Invocations is the number of actual function invocations, excluding
	// cache hits.
	Invocations int
	// TotalLatency is the summed wall-clock time of all invocations.
	TotalLatency time.Duration
	// Evaluated is the number of rows for which a predicate containing the
	// function was evaluated.
	Evaluated int
	// Matched is the number of evaluated rows for which the predicate held.
	Matched int
	// CacheLookups is the number of cache probes made for the function.
	CacheLookups int
	// CacheHits is the number of cache probes that were served from cache.
	CacheHits int
}

// Estimate is the catalog's current belief about a function. Fields for which
// no observation exists hold the configured defaults.
type Estimate struct {
	// Latency is the expected wall-clock time of a single invocation.
	Latency time.Duration
	// Selectivity is the expected fraction of rows retained by predicates
	// containing the function, in the range (0, 1].
	Selectivity float64
	// CacheHitRate is the expected fraction of lookups served from cache.
	CacheHitRate float64
	// Samples is the number of batch observations folded in so far.
	Samples uint64
}

type funcStats struct {
	latencyMs   *ewma.Average
	selectivity *ewma.Average
	hitRate     *ewma.Average
	samples     uint64
}

// Catalog tracks per-signature statistics. It is safe for concurrent use;
// observations from concurrently executing batches commute.
type Catalog struct {
	cfg Config

	mtx     sync.RWMutex
	records map[functions.Signature]*funcStats
}

// New creates a new Catalog.
func New(cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Catalog{
		cfg:     cfg,
		records: make(map[functions.Signature]*funcStats),
	}, nil
}

// RecordBatch folds one batch observation into the statistics for sig. A
// record is created on first observation; records are never removed during
// the lifetime of the catalog.
func (c *Catalog) RecordBatch(sig functions.Signature, obs BatchObservation) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	rec, ok := c.records[sig]
	if !ok {
		rec = &funcStats{
			latencyMs:   ewma.New(c.cfg.DecayWeight),
			selectivity: ewma.New(c.cfg.DecayWeight),
			hitRate:     ewma.New(c.cfg.DecayWeight),
		}
		c.records[sig] = rec
	}

	if obs.Invocations > 0 {
		perInvocation := obs.TotalLatency.Seconds() * 1000 / float64(obs.Invocations)
		rec.latencyMs.Observe(perInvocation)
	}
	if obs.Evaluated > 0 {
		rec.selectivity.Observe(float64(obs.Matched) / float64(obs.Evaluated))
	}
	if obs.CacheLookups > 0 {
		rec.hitRate.Observe(float64(obs.CacheHits) / float64(obs.CacheLookups))
	}
	rec.samples++
}

// Estimate returns the current estimate for sig. A signature without any
// observations yields the configured defaults; missing statistics are never
// an error.
func (c *Catalog) Estimate(sig functions.Signature) Estimate {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	rec, ok := c.records[sig]
	if !ok {
		return c.defaultEstimate()
	}
	return c.estimateLocked(rec)
}

func (c *Catalog) defaultEstimate() Estimate {
	return Estimate{
		Latency:      c.cfg.UnknownLatency,
		Selectivity:  c.cfg.DefaultSelectivity,
		CacheHitRate: 0,
	}
}

func (c *Catalog) estimateLocked(rec *funcStats) Estimate {
	est := c.defaultEstimate()
	est.Samples = rec.samples

	if rec.latencyMs.Count() > 0 {
		est.Latency = time.Duration(rec.latencyMs.Value() * float64(time.Millisecond))
	}
	if rec.selectivity.Count() > 0 {
		est.Selectivity = rec.selectivity.Value()
	}
	if rec.hitRate.Count() > 0 {
		est.CacheHitRate = rec.hitRate.Value()
	}
	return est
}

// Len returns the number of tracked signatures.
func (c *Catalog) Len() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return len(c.records)
}
