// Package metrics records run counters and stage timings in a private
// Prometheus registry, written out as a textfile-collector file.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "filingcheck"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	documents   *prometheus.CounterVec
	failures    prometheus.Counter
	flags       *prometheus.CounterVec
	suggestions *prometheus.CounterVec
	missing     prometheus.Gauge
	stages      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents reviewed, by classified type.",
		}, []string{"type"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_failures_total",
			Help:      "Documents that could not be loaded or reviewed.",
		}),
		flags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "red_flags_total",
			Help:      "Red flags raised, by rule and severity.",
		}, []string{"rule", "severity"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Suggestions produced, by grounding and composer.",
		}, []string{"grounded", "composer"}),
		missing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_documents",
			Help:      "Required documents missing from the last reviewed bundle.",
		}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.documents, m.failures, m.flags, m.suggestions, m.missing, m.stages)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Document counts one reviewed document of the given type.
func (m *Metrics) Document(docType string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(docType).Inc()
}

// DocumentFailed counts one document that could not be reviewed.
func (m *Metrics) DocumentFailed() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// Flag counts one red flag.
func (m *Metrics) Flag(rule, severity string) {
	if m == nil {
		return
	}
	m.flags.WithLabelValues(rule, severity).Inc()
}

// Suggestion counts one suggestion.
func (m *Metrics) Suggestion(grounded bool, composer string) {
	if m == nil {
		return
	}
	m.suggestions.WithLabelValues(fmt.Sprint(grounded), composer).Inc()
}

// Missing records the number of missing required documents.
func (m *Metrics) Missing(n int) {
	if m == nil {
		return
	}
	m.missing.Set(float64(n))
}

// Stage observes the duration of a stage that started at start.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
// The file is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
