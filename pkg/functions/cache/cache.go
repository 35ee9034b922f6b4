// Package cache memoizes the outputs of deterministic functions. Results are
// keyed by function signature and argument fingerprint and held in a
// size-bounded in-memory tier, optionally mirrored to a persistent [Store] so
// expensive results survive restarts.
//
// Concurrent lookups of the same key share a single computation. The
// computation runs detached from any caller's context, so cancelling one
// query abandons its wait but never the work other callers may reuse.
package cache

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) (record.Value, error)

// Config for building a result cache.
type Config struct {
	// MaxSizeBytes bounds the memory held by cached results. A
	// human-readable size such as "256MB"; empty or "0" disables the bound.
	MaxSizeBytes string `yaml:"max_size_bytes"`
	// MaxItemSizeBytes is the largest single result admitted to the cache.
	// Larger results are still returned to the caller, just not retained.
	MaxItemSizeBytes string `yaml:"max_item_size_bytes"`
	// MaxEntries bounds the number of cached results. 0 disables the bound.
	MaxEntries int `yaml:"max_entries"`

	// Retry governs how callers that observed a failed computation back off
	// before recomputing.
	Retry backoff.Config `yaml:"retry"`

	Background BackgroundConfig `yaml:"background"`
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.MaxSizeBytes, prefix+"max-size-bytes", "128MB", "Maximum memory held by cached function results. A human-readable size, or 0 to disable the bound.")
	f.StringVar(&cfg.MaxItemSizeBytes, prefix+"max-item-size-bytes", "16MB", "Largest single result admitted to the cache. Larger results are returned to the caller but not retained.")
	f.IntVar(&cfg.MaxEntries, prefix+"max-entries", 0, "Maximum number of cached function results. 0 to disable the bound.")
	cfg.Retry.RegisterFlagsWithPrefix(prefix+"retry", f)
	cfg.Background.RegisterFlagsWithPrefix(prefix, f)
}

func (cfg *Config) Validate() error {
	if _, err := parsebytes(cfg.MaxSizeBytes); err != nil {
		return errors.Wrap(err, "invalid max_size_bytes")
	}
	if _, err := parsebytes(cfg.MaxItemSizeBytes); err != nil {
		return errors.Wrap(err, "invalid max_item_size_bytes")
	}
	if cfg.MaxEntries < 0 {
		return errors.New("max_entries must not be negative")
	}
	return nil
}

func parsebytes(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, nil
	}
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %s", s)
	}
	return bytes, nil
}

// call tracks one in-flight computation. Waiters block on done, then read val
// and err. Results reach waiters through the call itself, never through a
// second cache lookup, so eviction cannot affect a read already under way.
type call struct {
	done chan struct{}
	val  record.Value
	err  error
}

// Cache memoizes function results keyed by signature and argument
// fingerprint. All methods are safe for concurrent use.
type Cache struct {
	cfg    Config
	logger log.Logger

	maxItemSize uint64

	// store is the optional persistent mirror. Nil means in-memory only.
	store Store

	mtx   sync.Mutex
	lru   *lruStore
	calls map[Key]*call

	// runs tracks detached computations so Stop can drain them.
	runs sync.WaitGroup

	metrics *metrics
}

// New creates a result cache. store may be nil, in which case results live
// only in memory.
func New(cfg Config, store Store, logger log.Logger, reg prometheus.Registerer) (*Cache, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.Retry == (backoff.Config{}) {
		cfg.Retry = backoff.Config{
			MinBackoff: 100 * time.Millisecond,
			MaxBackoff: time.Second,
			MaxRetries: 5,
		}
	}

	maxBytes, err := parsebytes(cfg.MaxSizeBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid max_size_bytes")
	}
	maxItem, err := parsebytes(cfg.MaxItemSizeBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid max_item_size_bytes")
	}
	if maxBytes > 0 && (maxItem == 0 || maxItem > maxBytes) {
		maxItem = maxBytes
	}

	return &Cache{
		cfg:         cfg,
		logger:      logger,
		maxItemSize: maxItem,
		store:       store,
		lru:         newLRUStore(maxBytes, cfg.MaxEntries),
		calls:       make(map[Key]*call),
		metrics:     newMetrics(reg),
	}, nil
}

// GetOrCompute returns the cached value for key, computing it with compute on
// a miss. Concurrent callers for the same key share one computation: exactly
// one of them runs compute, the rest wait for its result.
//
// The computation runs on a context detached from ctx. Cancelling ctx makes
// this call return early with the context error, but the computation finishes
// and its result is stored for future callers. Callers that observe a failed
// computation back off and recompute, so one transient error does not poison
// everyone who was waiting on it.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (record.Value, error) {
	boff := backoff.New(ctx, c.cfg.Retry)

	for {
		c.mtx.Lock()
		if val, ok := c.lru.get(key, time.Now()); ok {
			c.mtx.Unlock()
			c.metrics.hitsTotal.Inc()
			return val, nil
		}
		cl, inflight := c.calls[key]
		c.mtx.Unlock()

		if inflight {
			c.metrics.sharedWaitsTotal.Inc()

			select {
			case <-cl.done:
			case <-ctx.Done():
				return record.Value{}, ctx.Err()
			}
			if cl.err == nil {
				return cl.val, nil
			}

			boff.Wait()
			if !boff.Ongoing() {
				return record.Value{}, boff.Err()
			}
			continue
		}

		c.metrics.missesTotal.Inc()

		if c.store != nil {
			if val, ok := c.loadStored(key); ok {
				c.mtx.Lock()
				c.admitLocked(key, val)
				c.mtx.Unlock()
				c.metrics.storeHitsTotal.Inc()
				return val, nil
			}
		}

		c.mtx.Lock()
		if val, ok := c.lru.get(key, time.Now()); ok {
			c.mtx.Unlock()
			c.metrics.hitsTotal.Inc()
			return val, nil
		}
		if _, ok := c.calls[key]; ok {
			// Someone claimed the computation while we were probing the
			// store. Join them.
			c.mtx.Unlock()
			continue
		}
		cl = &call{done: make(chan struct{})}
		c.calls[key] = cl
		c.mtx.Unlock()

		c.metrics.inflight.Inc()
		c.runs.Add(1)
		go c.run(context.WithoutCancel(ctx), key, cl, compute)

		select {
		case <-cl.done:
		case <-ctx.Done():
			return record.Value{}, ctx.Err()
		}
		return cl.val, cl.err
	}
}

// run executes one computation and publishes its outcome. The stored copy is
// admitted before the call token is released, so no later lookup can slip
// between "computation done" and "result visible" and recompute.
func (c *Cache) run(ctx context.Context, key Key, cl *call, compute ComputeFunc) {
	defer c.runs.Done()

	start := time.Now()
	val, err := compute(ctx)

	c.mtx.Lock()
	if err == nil {
		c.admitLocked(key, val)
	}
	delete(c.calls, key)
	c.mtx.Unlock()

	cl.val, cl.err = val, err
	close(cl.done)

	c.metrics.inflight.Dec()
	if err != nil {
		c.metrics.failuresTotal.Inc()
		level.Warn(c.logger).Log("msg", "function computation failed", "key", key, "duration", time.Since(start), "err", err)
		return
	}
	c.metrics.computeSeconds.Observe(time.Since(start).Seconds())

	c.persist(key, val)
}

// admitLocked places val in the in-memory tier unless it is too large to ever
// fit. Callers must hold c.mtx.
func (c *Cache) admitLocked(key Key, val record.Value) {
	size := key.size() + val.Size()
	if c.maxItemSize > 0 && size > c.maxItemSize {
		c.metrics.oversizedTotal.Inc()
		level.Debug(c.logger).Log("msg", "result too large to cache", "key", key, "size", size)
		return
	}

	now := time.Now()
	evicted := c.lru.put(key, val, size, now)
	if len(evicted) > 0 {
		c.metrics.evictionsTotal.Add(float64(len(evicted)))
		for _, ent := range evicted {
			c.metrics.evictedAgeSeconds.Observe(now.Sub(ent.createdAt).Seconds())
		}
	}
	c.metrics.entries.Set(float64(c.lru.len()))
	c.metrics.memoryBytes.Set(float64(c.lru.bytes()))
}

// InvalidateSignature removes every result computed by sig from memory and,
// if a store is configured, from the store. Computations already in flight
// are not interrupted.
func (c *Cache) InvalidateSignature(sig functions.Signature) error {
	c.mtx.Lock()
	n := c.lru.invalidate(sig)
	c.metrics.entries.Set(float64(c.lru.len()))
	c.metrics.memoryBytes.Set(float64(c.lru.bytes()))
	c.mtx.Unlock()

	if n > 0 {
		c.metrics.invalidatedTotal.Add(float64(n))
	}

	if c.store == nil {
		return nil
	}
	if err := c.store.DeletePrefix(signaturePrefix(sig)); err != nil {
		return errors.Wrap(err, "deleting stored results")
	}
	return nil
}

// Stop waits for detached computations to finish publishing their results,
// then releases the persistent store.
func (c *Cache) Stop() {
	c.runs.Wait()

	if c.store == nil {
		return
	}
	if err := c.store.Stop(); err != nil {
		level.Error(c.logger).Log("msg", "error stopping result store", "err", err)
	}
}

func (c *Cache) persist(key Key, val record.Value) {
	if c.store == nil {
		return
	}
	buf, err := json.Marshal(val)
	if err != nil {
		level.Error(c.logger).Log("msg", "failed to encode result for store", "key", key, "err", err)
		return
	}
	if err := c.store.Put(key.encode(), buf); err != nil {
		level.Error(c.logger).Log("msg", "failed to write result to store", "key", key, "err", err)
	}
}

func (c *Cache) loadStored(key Key) (record.Value, bool) {
	buf, found, err := c.store.Get(key.encode())
	if err != nil {
		level.Error(c.logger).Log("msg", "failed to read result from store", "key", key, "err", err)
		return record.Value{}, false
	}
	if !found {
		return record.Value{}, false
	}

	var val record.Value
	if err := json.Unmarshal(buf, &val); err != nil {
		level.Error(c.logger).Log("msg", "failed to decode stored result", "key", key, "err", err)
		return record.Value{}, false
	}
	return val, true
}
