package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StoreCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "repository", Name: "store_calls_total", Help: "Number of document store calls by collection, operation and outcome."},
		[]string{"collection", "operation", "outcome"},
	)
	StoreLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "gogotex", Subsystem: "repository", Name: "store_call_duration_seconds", Help: "Latency of document store calls.", Buckets: prometheus.DefBuckets},
		[]string{"collection", "operation"},
	)
	RetentionPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "repository", Name: "retention_purged_total", Help: "Soft-deleted documents permanently removed by the retention sweeper."},
		[]string{"collection"},
	)
	RetentionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "repository", Name: "retention_runs_total", Help: "Retention sweeps by outcome (ok, error, skipped)."},
		[]string{"collection", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreCalls)
	reg.MustRegister(StoreLatency)
	reg.MustRegister(RetentionPurged)
	reg.MustRegister(RetentionRuns)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}

// ObserveStoreCall records one round trip to the document store.
func ObserveStoreCall(collection, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StoreCalls.WithLabelValues(collection, operation, outcome).Inc()
	StoreLatency.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}
