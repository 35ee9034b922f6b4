package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for a function result cache.
type metrics struct {
	hitsTotal        prometheus.Counter
	missesTotal      prometheus.Counter
	storeHitsTotal   prometheus.Counter
	sharedWaitsTotal prometheus.Counter
	failuresTotal    prometheus.Counter
	evictionsTotal   prometheus.Counter
	invalidatedTotal prometheus.Counter
	oversizedTotal   prometheus.Counter

	entries     prometheus.Gauge
	memoryBytes prometheus.Gauge
	inflight    prometheus.Gauge

	computeSeconds    prometheus.Histogram
	evictedAgeSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		hitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_hits_total",
			Help: "Total number of results served from the in-memory tier",
		}),
		missesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_misses_total",
			Help: "Total number of lookups that found no usable cached result",
		}),
		storeHitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_store_hits_total",
			Help: "Total number of results served from the persistent store",
		}),
		sharedWaitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_shared_waits_total",
			Help: "Total number of callers that attached to a computation already in flight",
		}),
		failuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_compute_failures_total",
			Help: "Total number of computations that finished with an error",
		}),
		evictionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_evictions_total",
			Help: "Total number of entries evicted to stay within the configured bounds",
		}),
		invalidatedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_invalidated_total",
			Help: "Total number of entries removed by signature invalidation",
		}),
		oversizedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_function_cache_oversized_total",
			Help: "Total number of results too large to retain in the cache",
		}),

		entries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muninn_function_cache_entries",
			Help: "Number of results currently held in the in-memory tier",
		}),
		memoryBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muninn_function_cache_memory_bytes",
			Help: "Memory currently consumed by the in-memory tier",
		}),
		inflight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muninn_function_cache_inflight_computations",
			Help: "Number of computations currently in flight",
		}),

		computeSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "muninn_function_cache_compute_seconds",
			Help: "Number of seconds spent computing results on cache misses",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		evictedAgeSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "muninn_function_cache_evicted_age_seconds",
			Help: "Age of results at the time they were evicted",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}
