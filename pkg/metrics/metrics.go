// Package metrics exposes the Prometheus registry used by opsgrid.
// All metrics are defined in their respective packages (client, table,
// pagination, cache, ratelimit, changefeed) to keep the packages independent.
//
// This package provides the scrape handler and documents every metric.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every opsgrid metric is registered with via promauto.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer for Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Backend client (pkg/client):
//   - opsgrid_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status ("network_error", "cancelled" on transport failures)
//   - opsgrid_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - opsgrid_errors_total{class} (Counter): Errors by class (auth, validation, client, server, network, partial_data)
//
// Table controller (pkg/table):
//   - opsgrid_table_loads_total{outcome} (Counter): Page loads by outcome (ready, failed, discarded, stepped_back, clamped)
//   - opsgrid_table_load_duration_seconds (Histogram): Duration of applied page loads
//
// Export walks (pkg/pagination):
//   - opsgrid_walker_pages_total (Counter): Pages fetched by full-collection walks
//   - opsgrid_walker_runs_total{outcome} (Counter): Walks by outcome (complete, failed, cancelled)
//
// Column cache (pkg/cache):
//   - opsgrid_column_cache_hits_total{layer} (Counter): Hits by layer (session, redis)
//   - opsgrid_column_cache_misses_total (Counter): Misses in every layer
//   - opsgrid_column_cache_size_bytes{layer} (Gauge): Bytes written by layer
//   - opsgrid_column_cache_errors_total{operation} (Counter): Store errors by operation
//
// Request pacing (pkg/ratelimit):
//   - opsgrid_pacer_wait_seconds (Histogram): Time spent waiting for a request slot
//   - opsgrid_pacer_rejected_total (Counter): Non-blocking acquisitions refused
//
// Change feed (pkg/changefeed):
//   - opsgrid_changefeed_events_total{entity, outcome} (Counter): Change events by entity and outcome (refreshed, ignored, invalid)
//
// Example Prometheus Queries:
//
//   # Share of superseded page loads
//   sum(rate(opsgrid_table_loads_total{outcome="discarded"}[5m])) /
//   sum(rate(opsgrid_table_loads_total[5m]))
//
//   # Column cache hit rate
//   sum(rate(opsgrid_column_cache_hits_total[5m])) /
//   (sum(rate(opsgrid_column_cache_hits_total[5m])) + sum(rate(opsgrid_column_cache_misses_total[5m])))
//
//   # Backend error rate by class
//   sum by (class) (rate(opsgrid_errors_total[5m]))
//
//   # P95 backend latency
//   histogram_quantile(0.95, rate(opsgrid_request_duration_seconds_bucket[5m]))
