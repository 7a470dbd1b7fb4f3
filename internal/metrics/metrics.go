// Package metrics exposes the Prometheus collectors shared across the
// solver, cache, and HTTP layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SolvesTotal counts solve attempts by terminal status.
	SolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emix",
		Subsystem: "solver",
		Name:      "solves_total",
		Help:      "Solve attempts by terminal status (optimal, infeasible, error, cached).",
	}, []string{"status"})

	// SolveDuration tracks wall-clock time of full solves, cache hits excluded.
	SolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "emix",
		Subsystem: "solver",
		Name:      "solve_duration_seconds",
		Help:      "Wall-clock duration of LP solves.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// CacheHits counts result-cache hits by backend.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emix",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Result cache hits by backend.",
	}, []string{"backend"})

	// CacheMisses counts result-cache misses by backend.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emix",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Result cache misses by backend.",
	}, []string{"backend"})

	// CacheErrors counts backend failures absorbed by the fallback path.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emix",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Cache backend errors absorbed by the degraded path.",
	}, []string{"backend", "op"})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emix",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route and status class.",
	}, []string{"route", "status"})
)
