package discovery

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for discovery.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	Duration        prometheus.Histogram
	MatchesReturned prometheus.Histogram

	BackendDuration *prometheus.HistogramVec
	BackendFailures *prometheus.CounterVec
	BackendHealthy  *prometheus.GaugeVec
}

// NewMetrics registers the discovery metrics once per process and returns them.
//
// Metrics:
//   - theodore_discovery_requests_total{strategy}
//   - theodore_discovery_duration_seconds
//   - theodore_discovery_matches_returned
//   - theodore_discovery_backend_search_duration_seconds{backend}
//   - theodore_discovery_backend_failures_total{backend}
//   - theodore_discovery_backend_healthy{backend}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "requests_total",
					Help:      "Total number of discovery operations by resulting strategy",
				},
				[]string{"strategy"},
			),
			Duration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "duration_seconds",
					Help:      "Duration of discovery operations in seconds",
					Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
				},
			),
			MatchesReturned: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "matches_returned",
					Help:      "Number of matches returned per discovery operation",
					Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
				},
			),
			BackendDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "backend_search_duration_seconds",
					Help:      "Duration of one backend's searches in seconds",
					Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
				},
				[]string{"backend"},
			),
			BackendFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "backend_failures_total",
					Help:      "Total number of failed backend searches",
				},
				[]string{"backend"},
			),
			BackendHealthy: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "theodore",
					Subsystem: "discovery",
					Name:      "backend_healthy",
					Help:      "1 if the backend is available for discovery, 0 otherwise",
				},
				[]string{"backend"},
			),
		}
	})

	return globalMetrics
}

// RecordDiscovery records one completed discovery operation.
func (m *Metrics) RecordDiscovery(strategy string, durationSeconds float64, matches int) {
	m.RequestsTotal.WithLabelValues(strategy).Inc()
	m.Duration.Observe(durationSeconds)
	m.MatchesReturned.Observe(float64(matches))
}

// RecordBackendSearch records one backend's search duration.
func (m *Metrics) RecordBackendSearch(backend string, durationSeconds float64) {
	m.BackendDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordBackendFailure records a failed backend search.
func (m *Metrics) RecordBackendFailure(backend string) {
	m.BackendFailures.WithLabelValues(backend).Inc()
}

// SetBackendHealthy updates the health gauge for backend.
func (m *Metrics) SetBackendHealthy(backend string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.BackendHealthy.WithLabelValues(backend).Set(v)
}

// DeleteBackend removes the backend's labelled series.
func (m *Metrics) DeleteBackend(backend string) {
	m.BackendHealthy.DeleteLabelValues(backend)
}
