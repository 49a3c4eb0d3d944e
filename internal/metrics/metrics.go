// Package metrics defines the Prometheus collectors exported by medlex.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gcbaptista/medlex-spotter/model"
)

const namespace = "medlex"

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	// NotesScanned counts scanned notes.
	NotesScanned prometheus.Counter

	// Hits counts hits. Labels: method (exact, fuzzy, phonetic), negated (true, false)
	Hits *prometheus.CounterVec

	// FlagsSet counts flags raised. Labels: flag (has_<canonical>)
	FlagsSet *prometheus.CounterVec

	// ScanDuration tracks per-note scan time.
	ScanDuration prometheus.Histogram

	// Jobs counts finished batch jobs. Labels: status (completed, failed, cancelled)
	Jobs *prometheus.CounterVec

	// HTTPRequests counts API requests. Labels: method, route, status
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration tracks API latency. Labels: method, route
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		NotesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "notes_total",
			Help:      "Total number of notes scanned",
		}),
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "hits_total",
			Help:      "Total number of matcher hits by method and negation verdict",
		}, []string{"method", "negated"}),
		FlagsSet: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "flags_total",
			Help:      "Total number of notes flagged per canonical",
		}, []string{"flag"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Time spent scanning a single note",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total number of batch jobs by final status",
		}, []string{"status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveNote records one scanned note.
func (m *Metrics) ObserveNote(result model.NoteResult, took time.Duration) {
	if m == nil {
		return
	}
	m.NotesScanned.Inc()
	m.ScanDuration.Observe(took.Seconds())
	for _, s := range result.Spans {
		negated := "false"
		if s.IsNegated {
			negated = "true"
		}
		m.Hits.WithLabelValues(s.Method, negated).Inc()
	}
	for _, flag := range result.Flagged() {
		m.FlagsSet.WithLabelValues(flag).Inc()
	}
}

// ObserveJob records the final status of a batch job.
func (m *Metrics) ObserveJob(status model.JobStatus) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(string(status)).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
