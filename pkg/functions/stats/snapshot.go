package stats

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/util/ewma"
)

var json = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

// Snapshot is an immutable point-in-time copy of a [Catalog]. The optimizer
// plans against a snapshot so that a single optimization pass sees consistent
// statistics, making the optimized plan a pure function of the input plan and
// the snapshot.
type Snapshot struct {
	defaults Estimate
	records  map[functions.Signature]Estimate
}

// Snapshot returns an immutable copy of the current catalog contents.
func (c *Catalog) Snapshot() *Snapshot {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	records := make(map[functions.Signature]Estimate, len(c.records))
	for sig, rec := range c.records {
		records[sig] = c.estimateLocked(rec)
	}
	return &Snapshot{
		defaults: c.defaultEstimate(),
		records:  records,
	}
}

// Estimate returns the snapshot's estimate for sig, falling back to the
// defaults captured at snapshot time.
func (s *Snapshot) Estimate(sig functions.Signature) Estimate {
	if est, ok := s.records[sig]; ok {
		return est
	}
	return s.defaults
}

// Defaults returns the estimate used for signatures without observations,
// captured from the catalog configuration at snapshot time.
func (s *Snapshot) Defaults() Estimate { return s.defaults }

// Len returns the number of signatures captured in the snapshot.
func (s *Snapshot) Len() int { return len(s.records) }

// Fingerprint returns a deterministic hash of the snapshot contents. Two
// snapshots with identical estimates produce identical fingerprints, which
// makes the fingerprint usable as a plan cache key component.
func (s *Snapshot) Fingerprint() uint64 {
	sigs := make([]functions.Signature, 0, len(s.records))
	for sig := range s.records {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].String() < sigs[j].String() })

	h := xxhash.New()
	writeEstimate(h, s.defaults)
	for _, sig := range sigs {
		_, _ = h.WriteString(sig.String())
		_, _ = h.Write([]byte{0})
		writeEstimate(h, s.records[sig])
	}
	return h.Sum64()
}

func writeEstimate(h *xxhash.Digest, est Estimate) {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(est.Latency))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(est.Selectivity))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(est.CacheHitRate))
	binary.BigEndian.PutUint64(buf[24:32], est.Samples)
	_, _ = h.Write(buf[:])
}

// Store is the key-value boundary used to persist statistics between runs.
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool, error)
}

var catalogKey = []byte("stats/catalog")

type persistedRecord struct {
	Name         string  `json:"name"`
	Version      string  `json:"version"`
	LatencyMs    float64 `json:"latency_ms"`
	Selectivity  float64 `json:"selectivity"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	Samples      uint64  `json:"samples"`
}

// FlushTo writes the current catalog contents to the given store under a
// single key.
func (c *Catalog) FlushTo(store Store) error {
	snap := c.Snapshot()

	records := make([]persistedRecord, 0, len(snap.records))
	for sig, est := range snap.records {
		records = append(records, persistedRecord{
			Name:         sig.Name,
			Version:      sig.Version,
			LatencyMs:    est.Latency.Seconds() * 1000,
			Selectivity:  est.Selectivity,
			CacheHitRate: est.CacheHitRate,
			Samples:      est.Samples,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].Version < records[j].Version
	})

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	return store.Put(catalogKey, data)
}

// LoadFrom seeds the catalog with statistics previously written by
// [Catalog.FlushTo]. Loaded values are folded in as single observations, so
// they act as priors that fresh observations decay quickly. Loading into a
// catalog that already has records for a signature mixes the persisted values
// into the existing averages.
func (c *Catalog) LoadFrom(store Store) error {
	data, ok, err := store.Get(catalogKey)
	if err != nil {
		return fmt.Errorf("reading statistics: %w", err)
	}
	if !ok {
		return nil
	}

	var records []persistedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decoding statistics: %w", err)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	for _, pr := range records {
		sig := functions.Signature{Name: pr.Name, Version: pr.Version}
		rec, ok := c.records[sig]
		if !ok {
			rec = &funcStats{
				latencyMs:   ewma.New(c.cfg.DecayWeight),
				selectivity: ewma.New(c.cfg.DecayWeight),
				hitRate:     ewma.New(c.cfg.DecayWeight),
			}
			c.records[sig] = rec
		}
		rec.latencyMs.Observe(pr.LatencyMs)
		rec.selectivity.Observe(pr.Selectivity)
		rec.hitRate.Observe(pr.CacheHitRate)
		if rec.samples == 0 {
			rec.samples = pr.Samples
		}
	}
	return nil
}
