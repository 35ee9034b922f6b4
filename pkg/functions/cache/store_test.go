package cache

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// mapStore is an in-memory Store for exercising the wrappers.
type mapStore struct {
	mtx     sync.Mutex
	data    map[string][]byte
	stopped bool

	// block, when set, makes Put wait until the channel is closed.
	block    chan struct{}
	inflight *atomic.Int64
}

func newMapStore() *mapStore {
	return &mapStore{
		data:     make(map[string][]byte),
		inflight: atomic.NewInt64(0),
	}
}

func (m *mapStore) Put(key, value []byte) error {
	if m.block != nil {
		m.inflight.Inc()
		<-m.block
		m.inflight.Dec()
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *mapStore) Get(key []byte) ([]byte, bool, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *mapStore) DeletePrefix(prefix []byte) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *mapStore) Stop() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.stopped = true
	return nil
}

// blocking reports whether a Put is currently parked on the block channel.
func (m *mapStore) blocking() bool { return m.inflight.Load() > 0 }

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Put([]byte("classify@v1\x00k1"), []byte("one")))
	require.NoError(t, s.Put([]byte("classify@v1\x00k2"), []byte("two")))
	require.NoError(t, s.Put([]byte("embed@v1\x00k1"), []byte("three")))

	val, found, err := s.Get([]byte("classify@v1\x00k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("one"), val)

	_, found, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, found)

	// Prefix deletion only touches keys of the matching signature.
	require.NoError(t, s.DeletePrefix([]byte("classify@v1\x00")))

	for _, key := range []string{"classify@v1\x00k1", "classify@v1\x00k2"} {
		_, found, err = s.Get([]byte(key))
		require.NoError(t, err)
		require.False(t, found)
	}

	val, found, err = s.Get([]byte("embed@v1\x00k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("three"), val)

	require.NoError(t, s.Stop())

	// Values survive a reopen.
	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Stop()) }()

	val, found, err = s.Get([]byte("embed@v1\x00k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("three"), val)
}

func TestSnappyStore(t *testing.T) {
	inner := newMapStore()
	s := NewSnappyStore(inner, log.NewNopLogger())

	value := []byte("some value worth compressing, some value worth compressing")
	require.NoError(t, s.Put([]byte("k"), value))

	val, found, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, value, val)

	// The inner store holds the compressed form, not the raw value.
	raw, found, err := inner.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.NotEqual(t, value, raw)
	require.Less(t, len(raw), len(value))

	// A corrupt entry reads as missing.
	require.NoError(t, inner.Put([]byte("broken"), []byte("not snappy data")))
	_, found, err = s.Get([]byte("broken"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestBackgroundStore(t *testing.T) {
	inner := newMapStore()
	s := NewBackgroundStore(BackgroundConfig{WriteBackGoroutines: 2, WriteBackBuffer: 16}, inner, log.NewNopLogger(), nil)

	require.NoError(t, s.Put([]byte("k"), []byte("v")))

	require.Eventually(t, func() bool {
		_, found, err := inner.Get([]byte("k"))
		return err == nil && found
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	require.True(t, inner.stopped)
}

func TestBackgroundStore_dropsWhenFull(t *testing.T) {
	inner := newMapStore()
	inner.block = make(chan struct{})

	s := NewBackgroundStore(BackgroundConfig{WriteBackGoroutines: 1, WriteBackBuffer: 1}, inner, log.NewNopLogger(), nil)
	bg := s.(*backgroundStore)

	// The first write occupies the only worker, the second fills the buffer,
	// and the third is dropped.
	require.NoError(t, s.Put([]byte("k1"), []byte("v")))
	require.Eventually(t, func() bool { return inner.blocking() }, time.Second, time.Millisecond)
	require.NoError(t, s.Put([]byte("k2"), []byte("v")))
	require.NoError(t, s.Put([]byte("k3"), []byte("v")))

	require.Equal(t, float64(1), testutil.ToFloat64(bg.droppedWriteBack))

	close(inner.block)
	require.NoError(t, s.Stop())
}
