package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the verifier bridge.
type Metrics struct {
	Registry *prometheus.Registry

	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec
	VerificationErrors   *prometheus.CounterVec
	ActiveVerifications  prometheus.Gauge
	CacheEvents          *prometheus.CounterVec
	RequestsInFlight     prometheus.Gauge
	SourceSizeBytes      prometheus.Histogram
	OutputSizeBytes      prometheus.Histogram
	DiagnosticsPerRun    prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verifier",
				Name:      "verifications_total",
				Help:      "Total number of verification runs by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),

		VerificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verifier",
				Name:      "verification_duration_seconds",
				Help:      "Wall-clock duration of verification runs in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),

		VerificationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verifier",
				Name:      "verification_errors_total",
				Help:      "Total verification request errors by type.",
			},
			[]string{"type"},
		),

		ActiveVerifications: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "verifier",
				Name:      "active_verifications",
				Help:      "Number of currently running verifier invocations.",
			},
		),

		CacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verifier",
				Name:      "cache_events_total",
				Help:      "Result cache lookups by result (hit or miss).",
			},
			[]string{"result"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "verifier",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		SourceSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "verifier",
				Name:      "source_size_bytes",
				Help:      "Size of submitted source text in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "verifier",
				Name:      "output_size_bytes",
				Help:      "Size of raw verifier output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),

		DiagnosticsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "verifier",
				Name:      "diagnostics_per_run",
				Help:      "Number of diagnostics reported per verification run.",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
	}

	reg.MustRegister(
		m.VerificationsTotal,
		m.VerificationDuration,
		m.VerificationErrors,
		m.ActiveVerifications,
		m.CacheEvents,
		m.RequestsInFlight,
		m.SourceSizeBytes,
		m.OutputSizeBytes,
		m.DiagnosticsPerRun,
	)

	return m
}

// RecordVerification records metrics for a completed verification run.
func (m *Metrics) RecordVerification(mode, outcome string, durationSec float64) {
	m.VerificationsTotal.WithLabelValues(mode, outcome).Inc()
	m.VerificationDuration.WithLabelValues(mode).Observe(durationSec)
}

// RecordError records a request error by type.
func (m *Metrics) RecordError(errType string) {
	m.VerificationErrors.WithLabelValues(errType).Inc()
}

// RecordCache records a cache lookup result.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheEvents.WithLabelValues("hit").Inc()
	} else {
		m.CacheEvents.WithLabelValues("miss").Inc()
	}
}
