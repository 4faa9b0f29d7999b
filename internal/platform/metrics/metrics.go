package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the packager. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	jobsStartedTotal    prometheus.Counter
	jobsCompletedTotal  *prometheus.CounterVec
	startFailuresTotal  *prometheus.CounterVec
	trackDecisionsTotal *prometheus.CounterVec
	jobsInProgress      prometheus.Gauge
	encodeDuration      prometheus.Histogram
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		jobsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_jobs_started_total",
			Help: "Total number of packaging jobs whose encoder was spawned",
		}),
		jobsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_jobs_completed_total",
			Help: "Total number of encoder exits by result",
		}, []string{"result"}),
		startFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_job_start_failures_total",
			Help: "Total number of jobs that failed before the encoder ran, by reason",
		}, []string{"reason"}),
		trackDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_track_decisions_total",
			Help: "Packaging decisions per track kind and mode",
		}, []string{"kind", "mode"}),
		jobsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_jobs_in_progress",
			Help: "Number of jobs whose encoder is still running",
		}),
		encodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hls_encode_duration_seconds",
			Help:    "Wall time of encoder processes in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.jobsStartedTotal,
		m.jobsCompletedTotal,
		m.startFailuresTotal,
		m.trackDecisionsTotal,
		m.jobsInProgress,
		m.encodeDuration,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncJobsStarted increments the started jobs counter.
func (m *Metrics) IncJobsStarted() {
	if m == nil {
		return
	}
	m.jobsStartedTotal.Inc()
}

// ObserveJobCompleted records an encoder exit and its wall time.
func (m *Metrics) ObserveJobCompleted(success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.jobsCompletedTotal.WithLabelValues(result).Inc()
	m.encodeDuration.Observe(elapsed.Seconds())
}

// IncStartFailures increments the start failure counter for reason.
func (m *Metrics) IncStartFailures(reason string) {
	if m == nil {
		return
	}
	m.startFailuresTotal.WithLabelValues(reason).Inc()
}

// IncTrackDecision records a packaging decision for a track kind.
func (m *Metrics) IncTrackDecision(kind, mode string) {
	if m == nil {
		return
	}
	m.trackDecisionsTotal.WithLabelValues(kind, mode).Inc()
}

// SetJobsInProgress sets the in-progress jobs gauge.
func (m *Metrics) SetJobsInProgress(n int) {
	if m == nil {
		return
	}
	m.jobsInProgress.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
