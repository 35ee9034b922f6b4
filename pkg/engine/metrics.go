package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for an engine.
type metrics struct {
	planningSeconds  prometheus.Histogram
	executionSeconds prometheus.Histogram

	planCacheHitsTotal   prometheus.Counter
	planCacheMissesTotal prometheus.Counter

	queriesStartedTotal prometheus.Counter
	queriesTotal        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		planningSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "muninn_engine_planning_seconds",
			Help: "Number of seconds spent building and optimizing physical plans",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
		executionSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "muninn_engine_execution_seconds",
			Help: "Number of seconds queries spent executing, from creation to terminal state",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),

		planCacheHitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_engine_plan_cache_hits_total",
			Help: "Total number of optimized plans served from the plan cache",
		}),
		planCacheMissesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_engine_plan_cache_misses_total",
			Help: "Total number of plan cache lookups that required planning",
		}),

		queriesStartedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_engine_queries_started_total",
			Help: "Total number of queries handed to the executor",
		}),
		queriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "muninn_engine_queries_total",
			Help: "Total number of queries by terminal state, counting transitions into state",
		}, []string{"state"}),
	}
}
