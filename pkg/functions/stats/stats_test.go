package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muninndb/muninn/pkg/functions"
)

func testConfig() Config {
	return Config{
		DecayWeight:        0.2,
		DefaultSelectivity: 0.5,
		UnknownLatency:     time.Second,
	}
}

func sigFor(name string) functions.Signature {
	return functions.Signature{Name: name, Version: "v1"}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero decay weight", func(cfg *Config) { cfg.DecayWeight = 0 }, true},
		{"decay weight above one", func(cfg *Config) { cfg.DecayWeight = 1.5 }, true},
		{"zero default selectivity", func(cfg *Config) { cfg.DefaultSelectivity = 0 }, true},
		{"zero unknown latency", func(cfg *Config) { cfg.UnknownLatency = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCatalog_Estimate_Defaults(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	est := c.Estimate(sigFor("unseen"))
	require.Equal(t, time.Second, est.Latency)
	require.Equal(t, 0.5, est.Selectivity)
	require.Equal(t, 0.0, est.CacheHitRate)
	require.Equal(t, uint64(0), est.Samples)
}

func TestCatalog_RecordBatch(t *testing.T) {
	t.Run("latency is averaged per invocation", func(t *testing.T) {
		c, err := New(testConfig())
		require.NoError(t, err)

		sig := sigFor("classify")
		c.RecordBatch(sig, BatchObservation{
			Invocations:  10,
			TotalLatency: 500 * time.Millisecond,
		})

		est := c.Estimate(sig)
		require.Equal(t, 50*time.Millisecond, est.Latency)
		require.Equal(t, uint64(1), est.Samples)
	})

	t.Run("selectivity is matched over evaluated", func(t *testing.T) {
		c, err := New(testConfig())
		require.NoError(t, err)

		sig := sigFor("classify")
		c.RecordBatch(sig, BatchObservation{Evaluated: 100, Matched: 10})

		est := c.Estimate(sig)
		require.Equal(t, 0.1, est.Selectivity)
	})

	t.Run("cache hit rate is hits over lookups", func(t *testing.T) {
		c, err := New(testConfig())
		require.NoError(t, err)

		sig := sigFor("classify")
		c.RecordBatch(sig, BatchObservation{CacheLookups: 4, CacheHits: 3})

		est := c.Estimate(sig)
		require.Equal(t, 0.75, est.CacheHitRate)
	})

	t.Run("fields without observations keep their defaults", func(t *testing.T) {
		c, err := New(testConfig())
		require.NoError(t, err)

		sig := sigFor("classify")
		c.RecordBatch(sig, BatchObservation{Evaluated: 10, Matched: 5})

		est := c.Estimate(sig)
		require.Equal(t, time.Second, est.Latency)
		require.Equal(t, 0.5, est.Selectivity)
	})

	t.Run("a zero batch after full batches decays but stays positive", func(t *testing.T) {
		c, err := New(testConfig())
		require.NoError(t, err)

		sig := sigFor("classify")
		for i := 0; i < 10; i++ {
			c.RecordBatch(sig, BatchObservation{Evaluated: 100, Matched: 100})
		}
		require.Equal(t, 1.0, c.Estimate(sig).Selectivity)

		c.RecordBatch(sig, BatchObservation{Evaluated: 100, Matched: 0})

		est := c.Estimate(sig)
		require.Less(t, est.Selectivity, 1.0)
		require.Greater(t, est.Selectivity, 0.0)
	})
}

func TestCatalog_ConcurrentRecordBatch(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	sig := sigFor("classify")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordBatch(sig, BatchObservation{
					Invocations:  1,
					TotalLatency: 10 * time.Millisecond,
					Evaluated:    10,
					Matched:      5,
				})
				c.Estimate(sig)
			}
		}()
	}
	wg.Wait()

	est := c.Estimate(sig)
	require.Equal(t, uint64(800), est.Samples)
	require.InDelta(t, 10*time.Millisecond, est.Latency, float64(time.Millisecond))
	require.InDelta(t, 0.5, est.Selectivity, 0.001)
}

func TestSnapshot(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	sig := sigFor("classify")
	c.RecordBatch(sig, BatchObservation{Evaluated: 10, Matched: 2})

	snap := c.Snapshot()
	require.Equal(t, 1, snap.Len())
	require.Equal(t, 0.2, snap.Estimate(sig).Selectivity)

	// Later observations must not leak into the snapshot.
	c.RecordBatch(sig, BatchObservation{Evaluated: 10, Matched: 10})
	require.Equal(t, 0.2, snap.Estimate(sig).Selectivity)

	// Unknown signatures fall back to defaults.
	require.Equal(t, 0.5, snap.Estimate(sigFor("unseen")).Selectivity)
}

func TestSnapshot_Fingerprint(t *testing.T) {
	build := func(mutate func(*Catalog)) *Snapshot {
		c, err := New(testConfig())
		require.NoError(t, err)
		mutate(c)
		return c.Snapshot()
	}

	base := func(c *Catalog) {
		c.RecordBatch(sigFor("a"), BatchObservation{Evaluated: 10, Matched: 5})
		c.RecordBatch(sigFor("b"), BatchObservation{Evaluated: 10, Matched: 1})
	}

	t.Run("identical contents produce identical fingerprints", func(t *testing.T) {
		require.Equal(t, build(base).Fingerprint(), build(base).Fingerprint())
	})

	t.Run("different contents produce different fingerprints", func(t *testing.T) {
		other := func(c *Catalog) {
			c.RecordBatch(sigFor("a"), BatchObservation{Evaluated: 10, Matched: 6})
			c.RecordBatch(sigFor("b"), BatchObservation{Evaluated: 10, Matched: 1})
		}
		require.NotEqual(t, build(base).Fingerprint(), build(other).Fingerprint())
	})
}

type memStore struct {
	mtx  sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Put(key, value []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Get(key []byte) ([]byte, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.data[string(key)]
	return v, ok, nil
}

func TestCatalog_FlushAndLoad(t *testing.T) {
	store := newMemStore()

	c1, err := New(testConfig())
	require.NoError(t, err)
	sig := sigFor("classify")
	c1.RecordBatch(sig, BatchObservation{
		Invocations:  4,
		TotalLatency: 200 * time.Millisecond,
		Evaluated:    100,
		Matched:      25,
		CacheLookups: 10,
		CacheHits:    5,
	})
	require.NoError(t, c1.FlushTo(store))

	c2, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, c2.LoadFrom(store))

	est := c2.Estimate(sig)
	require.Equal(t, 50*time.Millisecond, est.Latency)
	require.Equal(t, 0.25, est.Selectivity)
	require.Equal(t, 0.5, est.CacheHitRate)
	require.Equal(t, uint64(1), est.Samples)
}

func TestCatalog_LoadFrom_EmptyStore(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, c.LoadFrom(newMemStore()))
	require.Equal(t, 0, c.Len())
}
