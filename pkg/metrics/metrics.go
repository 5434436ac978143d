// Package metrics exposes the Prometheus registry used by the bugbug client.
// All metrics are defined in their respective packages (schedules, session,
// cache) to keep those packages independent of each other.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the bugbug client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Schedule Metrics (pkg/schedules):
//   - bugbug_requests_total{status} (Counter): Schedule requests by HTTP status
//   - bugbug_push_schedules_duration_seconds{outcome} (Histogram): Poll sequence duration
//     by outcome (succeeded, failed, timed_out)
//   - bugbug_poll_attempts (Histogram): 202 responses consumed per fetch
//   - bugbug_memo_lookups_total{result} (Counter): Fetches served from the memo (hit)
//     or the network (miss)
//
// Transport Metrics (pkg/session):
//   - bugbug_transport_retries_total{error_class} (Counter): Retry attempts by error class
//   - bugbug_transport_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - bugbug_transport_retry_exhausted_total{error_class} (Counter): Requests that used
//     every retry
//
// Cache Metrics (pkg/cache):
//   - bugbug_cache_hits_total{layer} (Counter): Memo hits by layer (memory, redis)
//   - bugbug_cache_misses_total{layer} (Counter): Memo misses by layer
//   - bugbug_cache_entries{layer} (Gauge): Results stored by this process
//   - bugbug_cache_errors_total{operation} (Counter): Store operation errors
//
// In automation the fetcher additionally prints bugbug_push_schedules_time and
// bugbug_push_schedules_retries as PERFHERDER_DATA lines (pkg/perfherder).
//
// Example Prometheus Queries:
//
//   # Memo Hit Rate
//   sum(rate(bugbug_memo_lookups_total{result="hit"}[5m])) /
//   sum(rate(bugbug_memo_lookups_total[5m]))
//
//   # Timeout Rate
//   rate(bugbug_push_schedules_duration_seconds_count{outcome="timed_out"}[1h])
//
//   # P95 Time Until Schedules Are Ready
//   histogram_quantile(0.95, rate(bugbug_push_schedules_duration_seconds_bucket[1h]))
//
//   # Transport Retries By Class
//   sum by (error_class) (rate(bugbug_transport_retries_total[5m]))
