package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts gate decisions by kind and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "larder",
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Total number of artifact requests by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// GenerationDuration tracks generator latency by kind and result.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "larder",
			Subsystem: "gate",
			Name:      "generation_duration_seconds",
			Help:      "Time spent waiting for the generator",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind", "result"},
	)

	// CacheFailuresTotal counts cache operations that failed and were absorbed.
	CacheFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "larder",
			Subsystem: "gate",
			Name:      "cache_failures_total",
			Help:      "Total number of absorbed cache failures by operation",
		},
		[]string{"operation"},
	)

	// CoalescedTotal counts requests that shared another request's recomputation.
	CoalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "larder",
			Subsystem: "gate",
			Name:      "coalesced_total",
			Help:      "Total number of requests served by an in-flight recomputation",
		},
		[]string{"kind"},
	)

	// InvalidationsTotal counts entries dropped by invalidation hooks.
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "larder",
			Subsystem: "gate",
			Name:      "invalidations_total",
			Help:      "Total number of cache entries invalidated by reason",
		},
		[]string{"reason"},
	)
)
