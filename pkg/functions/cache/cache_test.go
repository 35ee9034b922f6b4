package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/record"
)

func testConfig() Config {
	return Config{
		MaxSizeBytes: "1MB",
		Retry: backoff.Config{
			MinBackoff: time.Millisecond,
			MaxBackoff: 10 * time.Millisecond,
			MaxRetries: 10,
		},
	}
}

func newTestCache(t *testing.T, cfg Config, store Store) *Cache {
	t.Helper()
	c, err := New(cfg, store, log.NewNopLogger(), nil)
	require.NoError(t, err)
	return c
}

func keyFor(t *testing.T, name string, args ...record.Value) Key {
	t.Helper()
	key, err := KeyFor(functions.Signature{Name: name, Version: "v1"}, args)
	require.NoError(t, err)
	return key
}

func TestKeyFor(t *testing.T) {
	sig := functions.Signature{Name: "classify", Version: "v1"}

	k1, err := KeyFor(sig, []record.Value{record.Str("a"), record.Int(1)})
	require.NoError(t, err)
	k2, err := KeyFor(sig, []record.Value{record.Str("a"), record.Int(1)})
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := KeyFor(sig, []record.Value{record.Str("a"), record.Int(2)})
	require.NoError(t, err)
	require.NotEqual(t, k1.Fingerprint, k3.Fingerprint)

	k4, err := KeyFor(functions.Signature{Name: "classify", Version: "v2"}, []record.Value{record.Str("a"), record.Int(1)})
	require.NoError(t, err)
	require.NotEqual(t, k1, k4)
}

func TestKeyEncoding(t *testing.T) {
	sig := functions.Signature{Name: "classify", Version: "v1"}
	key := Key{Signature: sig, Fingerprint: 0xdeadbeef}

	encoded := key.encode()
	require.True(t, bytes.HasPrefix(encoded, signaturePrefix(sig)))
	require.Len(t, encoded, len(signaturePrefix(sig))+8)

	other := Key{Signature: functions.Signature{Name: "classify", Version: "v2"}, Fingerprint: 0xdeadbeef}
	require.False(t, bytes.HasPrefix(other.encode(), signaturePrefix(sig)))
}

func TestCache_GetOrCompute(t *testing.T) {
	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()
	key := keyFor(t, "classify", record.Str("doc-1"))

	computed := atomic.NewInt64(0)
	compute := func(context.Context) (record.Value, error) {
		computed.Inc()
		return record.Int(42), nil
	}

	val, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Equal(t, int64(42), val.Int())

	val, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Equal(t, int64(42), val.Int())
	require.Equal(t, int64(1), computed.Load())
}

func TestCache_GetOrCompute_singleComputation(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()
	key := keyFor(t, "classify", record.Str("doc-1"))

	var (
		computed = atomic.NewInt64(0)
		release  = make(chan struct{})
	)
	compute := func(context.Context) (record.Value, error) {
		computed.Inc()
		<-release
		return record.Int(42), nil
	}

	const callers = 50

	var wg sync.WaitGroup
	results := make([]record.Value, callers)
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), key, compute)
		}(i)
	}

	require.Eventually(t, func() bool {
		return computed.Load() == 1
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(42), results[i].Int())
	}
	require.Equal(t, int64(1), computed.Load())
}

func TestCache_GetOrCompute_retryAfterFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()
	key := keyFor(t, "classify", record.Str("doc-1"))

	var (
		attempts = atomic.NewInt64(0)
		hold     = make(chan struct{})
	)
	compute := func(context.Context) (record.Value, error) {
		if attempts.Inc() == 1 {
			<-hold
			return record.Value{}, errors.New("model endpoint unavailable")
		}
		return record.Int(42), nil
	}

	ownerErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(context.Background(), key, compute)
		ownerErr <- err
	}()

	// Wait until the first computation is claimed, then pile on waiters.
	require.Eventually(t, func() bool {
		return attempts.Load() == 1
	}, time.Second, time.Millisecond)

	const waiters = 3
	var wg sync.WaitGroup
	results := make([]record.Value, waiters)
	errs := make([]error, waiters)

	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(context.Background(), key, compute)
		}(i)
	}

	close(hold)

	// The claiming caller sees its own failure, the waiters recompute and
	// succeed.
	require.EqualError(t, <-ownerErr, "model endpoint unavailable")

	wg.Wait()
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(42), results[i].Int())
	}
	require.Equal(t, int64(2), attempts.Load())
}

func TestCache_GetOrCompute_detachedFromCaller(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()
	key := keyFor(t, "classify", record.Str("doc-1"))

	var (
		computed = atomic.NewInt64(0)
		started  = make(chan struct{})
		release  = make(chan struct{})
	)
	compute := func(ctx context.Context) (record.Value, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return record.Value{}, ctx.Err()
		}
		computed.Inc()
		return record.Int(42), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callerErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, key, compute)
		callerErr <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-callerErr, context.Canceled)

	// The computation outlives its caller; once it finishes, the result is
	// cached and served without recomputing.
	close(release)
	c.runs.Wait()
	require.Equal(t, int64(1), computed.Load())

	val, err := c.GetOrCompute(context.Background(), key, func(context.Context) (record.Value, error) {
		return record.Value{}, errors.New("should not recompute")
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), val.Int())
}

func TestCache_GetOrCompute_failureNotCached(t *testing.T) {
	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()
	key := keyFor(t, "classify", record.Str("doc-1"))

	boom := errors.New("boom")
	calls := atomic.NewInt64(0)

	_, err := c.GetOrCompute(context.Background(), key, func(context.Context) (record.Value, error) {
		calls.Inc()
		return record.Value{}, boom
	})
	require.ErrorIs(t, err, boom)

	val, err := c.GetOrCompute(context.Background(), key, func(context.Context) (record.Value, error) {
		calls.Inc()
		return record.Int(1), nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), val.Int())
	require.Equal(t, int64(2), calls.Load())
}

func TestCache_InvalidateSignature(t *testing.T) {
	c := newTestCache(t, testConfig(), nil)
	defer c.Stop()

	sigA := functions.Signature{Name: "classify", Version: "v1"}
	sigB := functions.Signature{Name: "embed", Version: "v1"}

	computed := atomic.NewInt64(0)
	compute := func(v int64) ComputeFunc {
		return func(context.Context) (record.Value, error) {
			computed.Inc()
			return record.Int(v), nil
		}
	}

	keyA1, err := KeyFor(sigA, []record.Value{record.Str("x")})
	require.NoError(t, err)
	keyA2, err := KeyFor(sigA, []record.Value{record.Str("y")})
	require.NoError(t, err)
	keyB, err := KeyFor(sigB, []record.Value{record.Str("x")})
	require.NoError(t, err)

	for _, key := range []Key{keyA1, keyA2, keyB} {
		_, err := c.GetOrCompute(context.Background(), key, compute(1))
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), computed.Load())

	require.NoError(t, c.InvalidateSignature(sigA))

	// Both entries of the invalidated signature are recomputed ...
	for _, key := range []Key{keyA1, keyA2} {
		_, err := c.GetOrCompute(context.Background(), key, compute(2))
		require.NoError(t, err)
	}
	require.Equal(t, int64(5), computed.Load())

	// ... while the other signature still hits.
	_, err = c.GetOrCompute(context.Background(), keyB, compute(2))
	require.NoError(t, err)
	require.Equal(t, int64(5), computed.Load())
}

func TestCache_GetOrCompute_oversizedResult(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSizeBytes = "1KB"
	c := newTestCache(t, cfg, nil)
	defer c.Stop()
	key := keyFor(t, "embed", record.Str("doc-1"))

	computed := atomic.NewInt64(0)
	compute := func(context.Context) (record.Value, error) {
		computed.Inc()
		return record.Bytes(make([]byte, 4<<10)), nil
	}

	val, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Len(t, val.Bytes(), 4<<10)

	// Too large to retain: a second lookup computes again.
	val, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Len(t, val.Bytes(), 4<<10)
	require.Equal(t, int64(2), computed.Load())

	c.mtx.Lock()
	defer c.mtx.Unlock()
	require.Equal(t, 0, c.lru.len())
}

func TestCache_lruEviction(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSizeBytes = ""
	cfg.MaxEntries = 2
	c := newTestCache(t, cfg, nil)
	defer c.Stop()

	k1 := keyFor(t, "classify", record.Str("doc-1"))
	k2 := keyFor(t, "classify", record.Str("doc-2"))
	k3 := keyFor(t, "classify", record.Str("doc-3"))

	computed := atomic.NewInt64(0)
	compute := func(context.Context) (record.Value, error) {
		computed.Inc()
		return record.Int(1), nil
	}

	_, err := c.GetOrCompute(context.Background(), k1, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), k2, compute)
	require.NoError(t, err)

	// Touch k1 so k2 becomes the least recently used entry.
	_, err = c.GetOrCompute(context.Background(), k1, compute)
	require.NoError(t, err)
	require.Equal(t, int64(2), computed.Load())

	// Inserting k3 evicts k2 but keeps k1.
	_, err = c.GetOrCompute(context.Background(), k3, compute)
	require.NoError(t, err)
	require.Equal(t, int64(3), computed.Load())

	_, err = c.GetOrCompute(context.Background(), k1, compute)
	require.NoError(t, err)
	require.Equal(t, int64(3), computed.Load())

	_, err = c.GetOrCompute(context.Background(), k2, compute)
	require.NoError(t, err)
	require.Equal(t, int64(4), computed.Load())
}

func TestCache_persistentStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	logger := log.NewNopLogger()

	sig := functions.Signature{Name: "classify", Version: "v1"}
	key, err := KeyFor(sig, []record.Value{record.Str("doc-1")})
	require.NoError(t, err)

	computed := atomic.NewInt64(0)
	compute := func(context.Context) (record.Value, error) {
		computed.Inc()
		return record.Str("positive"), nil
	}

	store, err := NewBoltStore(path)
	require.NoError(t, err)
	c := newTestCache(t, testConfig(), NewSnappyStore(store, logger))

	val, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Equal(t, "positive", val.Str())
	c.Stop()

	// A fresh cache sharing the same store serves the result without
	// recomputing.
	store, err = NewBoltStore(path)
	require.NoError(t, err)
	c = newTestCache(t, testConfig(), NewSnappyStore(store, logger))

	val, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Equal(t, "positive", val.Str())
	require.Equal(t, int64(1), computed.Load())

	// Invalidation reaches the store as well.
	require.NoError(t, c.InvalidateSignature(sig))
	c.Stop()

	store, err = NewBoltStore(path)
	require.NoError(t, err)
	c = newTestCache(t, testConfig(), NewSnappyStore(store, logger))
	defer c.Stop()

	_, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	require.Equal(t, int64(2), computed.Load())
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxSizeBytes = "a parsec"
	require.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.MaxEntries = -1
	require.Error(t, cfg.Validate())
}
