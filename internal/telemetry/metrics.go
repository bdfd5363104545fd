// Package telemetry provides logging setup and Prometheus metrics for the session
// coordinator.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<RSC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms for the session API
//     (labelled by route template, not raw URL)
//   - Remote catalog request counters and latency, by operation and outcome
//   - Selection cascade transitions and discarded stale results, by cascade level
//   - Layer registry mutations and the current number of layers
//   - Pixel query recordings, by outcome
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/session/layers/:id),
// NOT the raw URL, so user supplied layer ids do not inflate label cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Remote catalog metrics, recorded by catalog.Client once per logical call
// (retries included in the single observation).
//
// operation is one of list_organisations, list_raster_files, resolve_raster_url.
// outcome is "success" or "error".
//
// Example PromQL queries:
//   - Catalog error ratio:  sum(rate(catalog_requests_total{outcome="error"}[5m])) / sum(rate(catalog_requests_total[5m]))
var (
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of remote catalog calls, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of remote catalog calls including retries, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Selection cascade metrics.
//
// CascadeTransitionsTotal counts status changes per level ("organisations",
// "raster_files", "raster_url") and resulting status (loading, ready, empty, error, idle).
//
// CascadeStaleResultsTotal counts fetch completions that arrived after a newer
// selection superseded them and were therefore discarded. A steadily rising value
// means users are clicking faster than the catalog answers.
var (
	CascadeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_transitions_total",
			Help: "Total number of selection cascade status transitions, by level and status.",
		},
		[]string{"level", "status"},
	)

	CascadeStaleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_stale_results_total",
			Help: "Total number of superseded fetch results discarded by the selection cascade, by level.",
		},
		[]string{"level"},
	)
)

// Layer registry metrics.
//
// LayerMutationsTotal counts published snapshots by operation (set, toggle,
// opacity, remove). No-op mutations on absent ids are not counted.
var (
	LayerMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_mutations_total",
			Help: "Total number of layer registry mutations that produced a new snapshot, by operation.",
		},
		[]string{"operation"},
	)

	ActiveLayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_layers",
			Help: "Number of layers in the current registry snapshot.",
		},
	)
)

// PixelQueriesTotal counts ledger recordings by outcome: "value" when the query
// produced a number, "no_data" when it did not, "rejected" for unknown layers or
// invalid coordinates.
var PixelQueriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pixel_queries_total",
		Help: "Total number of pixel query recordings, by outcome.",
	},
	[]string{"outcome"},
)
