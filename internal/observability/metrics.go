// Package observability exposes Prometheus metrics for the cache tiers,
// provider calls, and blacklist activity.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tierResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_tier_results_total",
			Help: "Cache tier lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	providerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_provider_requests_total",
			Help: "Upstream provider calls by outcome.",
		},
		[]string{"outcome"},
	)

	providerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placecache_provider_latency_seconds",
			Help:    "Latency of upstream provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
	)

	sharedOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_shared_store_ops_total",
			Help: "Shared table store operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	bucketPlaces = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placecache_bucket_places",
			Help:    "Number of places in a shared bucket after merge.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	blacklistReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_blacklist_reports_total",
			Help: "Blacklist reports by tier that accepted the write.",
		},
		[]string{"tier"},
	)

	fetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_fetch_results_total",
			Help: "Orchestrated fetches by the source that served them.",
		},
		[]string{"source"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placecache_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placecache_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"method", "route"},
	)
)

func ObserveTier(tier, outcome string) {
	tierResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveProvider(outcome string, durationSeconds float64) {
	providerRequests.WithLabelValues(outcome).Inc()
	providerLatency.Observe(durationSeconds)
}

func ObserveSharedOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sharedOps.WithLabelValues(op, outcome).Inc()
}

func ObserveMergedBucket(places int) {
	bucketPlaces.Observe(float64(places))
}

func ObserveBlacklistReport(tier string) {
	blacklistReports.WithLabelValues(tier).Inc()
}

func ObserveFetch(source string) {
	fetchResults.WithLabelValues(source).Inc()
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(durationSeconds)
}
