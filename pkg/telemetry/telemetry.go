// Package telemetry exposes live Prometheus counters for the cache and the
// metrics recorder. Persisted metric records remain the source for windowed
// statistics; these counters only cover the current process.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeExpired = "expired"
	OutcomeBypass  = "bypass"
	OutcomeError   = "error"
)

// Write results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcache_cache_lookups_total",
			Help: "Result cache lookups by partition and outcome",
		},
		[]string{"partition", "outcome"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcache_cache_writes_total",
			Help: "Result cache writes by partition and result",
		},
		[]string{"partition", "result"},
	)

	MetricWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcache_metric_writes_total",
			Help: "Performance metric records written, by kind and result",
		},
		[]string{"kind", "result"},
	)

	SweepRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcache_sweep_removed_total",
			Help: "Records removed by retention sweeps",
		},
		[]string{"target"}, // "cache", "metrics"
	)

	StatsDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adcache_stats_compute_duration_seconds",
			Help:    "Time spent computing windowed performance statistics",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// RecordLookup counts one cache lookup.
func RecordLookup(partition, outcome string) {
	CacheLookups.WithLabelValues(partition, outcome).Inc()
}

// RecordCacheWrite counts one cache write.
func RecordCacheWrite(partition string, err error) {
	CacheWrites.WithLabelValues(partition, result(err)).Inc()
}

// RecordMetricWrite counts one metric record write.
func RecordMetricWrite(kind string, err error) {
	MetricWrites.WithLabelValues(kind, result(err)).Inc()
}

// RecordSweep adds removed records for target.
func RecordSweep(target string, removed int) {
	if removed > 0 {
		SweepRemoved.WithLabelValues(target).Add(float64(removed))
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
