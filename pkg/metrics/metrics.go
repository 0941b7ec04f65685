// Package metrics documents the Prometheus metrics exported by npm-discovery.
// All metrics are defined in their respective packages (transport, ratelimit,
// cache, discovery, executor) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by npm-discovery.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Transport Metrics (pkg/transport):
//   - registry_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - registry_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - registry_errors_total{class} (Counter): Errors by class (client, server, network)
//   - registry_retries_total{error_class} (Counter): Retry attempts by error class
//   - registry_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - registry_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - registry_ratelimit_waits_total (Counter): Requests delayed by the token bucket
//   - registry_ratelimit_wait_seconds (Histogram): Time spent waiting on the limiter
//
// Cache Metrics (pkg/cache):
//   - registry_cache_hits_total{layer="redis"} (Counter): Packument cache hits
//   - registry_cache_misses_total (Counter): Packument cache misses
//   - registry_cache_errors_total{operation} (Counter): Cache operation errors
//
// Discovery Metrics (pkg/discovery):
//   - discovery_runs_total{outcome} (Counter): Runs by outcome (completed, cancelled, failed)
//   - discovery_pages_total (Counter): Search pages fetched
//   - discovery_packages_found_total (Counter): Unique packages emitted
//   - discovery_partitions_total{outcome} (Counter): Partition sub-queries by outcome
//
// Executor Metrics (pkg/executor):
//   - executor_tasks_total{outcome} (Counter): Tasks by outcome (completed, failed, skipped)
//   - executor_inflight (Gauge): Currently in-flight operations
//
// Example Prometheus Queries:
//
//   # Request error rate
//   rate(registry_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(registry_request_duration_seconds_bucket[5m]))
//
//   # Partition failure ratio
//   rate(discovery_partitions_total{outcome="failed"}[1h]) /
//   rate(discovery_partitions_total[1h])
//
//   # Cache hit rate
//   sum(rate(registry_cache_hits_total[5m])) /
//   (sum(rate(registry_cache_hits_total[5m])) + sum(rate(registry_cache_misses_total[5m])))
