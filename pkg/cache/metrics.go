package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsgrid_column_cache_hits_total",
			Help: "Total number of column configuration cache hits",
		},
		[]string{"layer"}, // "session", "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsgrid_column_cache_misses_total",
			Help: "Total number of column configuration cache misses",
		},
	)

	// CacheSize tracks bytes written by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opsgrid_column_cache_size_bytes",
			Help: "Bytes written to the column configuration cache",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsgrid_column_cache_errors_total",
			Help: "Total number of column cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
