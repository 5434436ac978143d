package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugbug_cache_hits_total",
			Help: "Total number of bugbug schedule cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugbug_cache_misses_total",
			Help: "Total number of bugbug schedule cache misses",
		},
		[]string{"layer"},
	)

	// CacheEntries tracks entries written by this process
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bugbug_cache_entries",
			Help: "Number of bugbug schedule results stored by this process",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bugbug_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
