package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the integration layer.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Process execution metrics
	ProcessCalls    *prometheus.CounterVec
	ProcessDuration *prometheus.HistogramVec
	ProcessTimeouts prometheus.Counter
	ProcessRetries  prometheus.Counter

	// Install metrics
	InstallsTotal   *prometheus.CounterVec
	InstallDuration prometheus.Histogram

	// Inventory metrics
	RefreshesTotal  prometheus.Counter
	RefreshDuration prometheus.Histogram
	PackagesTracked prometheus.Gauge

	// Connection metrics
	ConnectAttempts *prometheus.CounterVec
	SubsystemStarts *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time

	mu sync.RWMutex
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "droiddeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "droiddeck_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ProcessCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "droiddeck_process_calls_total",
				Help: "External tool invocations by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		ProcessDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "droiddeck_process_duration_seconds",
				Help:    "External tool invocation duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"command"},
		),
		ProcessTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "droiddeck_process_timeouts_total",
				Help: "External tool invocations killed at their deadline",
			},
		),
		ProcessRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "droiddeck_process_retries_total",
				Help: "Retried external tool invocations",
			},
		),

		InstallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "droiddeck_installs_total",
				Help: "Package install attempts by format and outcome",
			},
			[]string{"format", "outcome"},
		),
		InstallDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "droiddeck_install_duration_seconds",
				Help:    "End-to-end install duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		RefreshesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "droiddeck_inventory_refreshes_total",
				Help: "Installed-package inventory refreshes",
			},
		),
		RefreshDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "droiddeck_inventory_refresh_duration_seconds",
				Help:    "Inventory refresh duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		PackagesTracked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "droiddeck_packages_tracked",
				Help: "Packages in the current inventory snapshot",
			},
		),

		ConnectAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "droiddeck_connect_attempts_total",
				Help: "Bridge connect attempts by outcome",
			},
			[]string{"outcome"},
		),
		SubsystemStarts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "droiddeck_subsystem_starts_total",
				Help: "Subsystem start attempts by outcome",
			},
			[]string{"outcome"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "droiddeck_ws_connections",
				Help: "Active websocket event subscribers",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProcessCall records one external tool invocation.
func (m *Metrics) RecordProcessCall(command, outcome string, duration time.Duration) {
	m.ProcessCalls.WithLabelValues(command, outcome).Inc()
	m.ProcessDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordInstall records an install attempt.
func (m *Metrics) RecordInstall(format, outcome string, duration time.Duration) {
	m.InstallsTotal.WithLabelValues(format, outcome).Inc()
	m.InstallDuration.Observe(duration.Seconds())
}

// RecordRefresh records one inventory refresh.
func (m *Metrics) RecordRefresh(duration time.Duration, packages int) {
	m.RefreshesTotal.Inc()
	m.RefreshDuration.Observe(duration.Seconds())
	m.PackagesTracked.Set(float64(packages))
}

// Uptime returns time since metrics creation.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
