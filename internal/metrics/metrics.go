// Package metrics holds the Prometheus collectors shared by the daemon,
// the importer and the HTTP API. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hilbertmap"

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	prefixesImported    *prometheus.CounterVec
	importBatches       prometheus.Counter
	importErrors        prometheus.Counter
	importDuration      prometheus.Histogram
	layoutBlocks        prometheus.Histogram
}

// New creates a fresh registry with HTTP, import and layout metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	prefixesImported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prefixes_imported_total",
		Help:      "Prefixes written to the store, by address family",
	}, []string{"family"})

	importBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_batches_total",
		Help:      "Prefix batches flushed to the store",
	})

	importErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_errors_total",
		Help:      "Imports that failed to parse or store",
	})

	importDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "import_duration_seconds",
		Help:      "Duration of a single prefix list import",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	layoutBlocks := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "layout_blocks",
		Help:      "Leaf blocks produced per layout request",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		prefixesImported,
		importBatches,
		importErrors,
		importDuration,
		layoutBlocks,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		prefixesImported:    prefixesImported,
		importBatches:       importBatches,
		importErrors:        importErrors,
		importDuration:      importDuration,
		layoutBlocks:        layoutBlocks,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// AddPrefixes counts n stored prefixes of the given family (4 or 6).
func (m *Metrics) AddPrefixes(family, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prefixesImported.WithLabelValues(strconv.Itoa(family)).Add(float64(n))
}

// IncBatch increments the flushed batch counter.
func (m *Metrics) IncBatch() {
	if m == nil {
		return
	}
	m.importBatches.Inc()
}

// IncImportError increments the failed import counter.
func (m *Metrics) IncImportError() {
	if m == nil {
		return
	}
	m.importErrors.Inc()
}

// ObserveImportDuration observes how long one import took.
func (m *Metrics) ObserveImportDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.importDuration.Observe(d.Seconds())
}

// ObserveLayout records the number of leaf blocks in a computed layout.
func (m *Metrics) ObserveLayout(blocks int) {
	if m == nil {
		return
	}
	m.layoutBlocks.Observe(float64(blocks))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
