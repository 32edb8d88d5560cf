// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loglens"

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector, registered on its own registry. All
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	UploadsTotal       *prometheus.CounterVec
	DetectionsTotal    *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	ExportsTotal       *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
}

// New registers the collectors plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads received, by decode outcome.",
		}, []string{"outcome"}),
		DetectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Schema labels detected on decoded uploads.",
		}, []string{"label"}),
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Analysis submissions, by label and outcome.",
		}, []string{"label", "outcome"}),
		SubmissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time spent waiting for an analysis result.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"label"}),
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Result summary exports, by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_sessions",
			Help:      "Upload sessions currently held in memory.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveUpload counts one decode attempt.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDetection counts one classified upload.
func (m *Metrics) ObserveDetection(label string) {
	if m == nil {
		return
	}
	m.DetectionsTotal.WithLabelValues(label).Inc()
}

// ObserveSubmission counts one submission and records its latency.
func (m *Metrics) ObserveSubmission(label, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(label, outcome).Inc()
	m.SubmissionDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveExport counts one export request.
func (m *Metrics) ObserveExport(outcome string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(outcome).Inc()
}

// SetSessions reports the number of live upload sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
