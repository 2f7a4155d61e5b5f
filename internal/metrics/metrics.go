// Package metrics exports replica and duplicate-scheduler instrumentation
// to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ponyreplica"

// Metrics implements live.Observer and dupes.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	polls        *prometheus.CounterVec
	pollFailures *prometheus.CounterVec
	documents    *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	panics       *prometheus.CounterVec
	mirrored     *prometheus.GaugeVec
	mergesTotal  prometheus.Counter
	mergesFailed prometheus.Counter
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Completed watermark polls per collection.",
		}, []string{"collection"}),
		pollFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Failed watermark polls per collection.",
		}, []string{"collection"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_applied_total",
			Help:      "Documents applied by polls per collection.",
		}, []string{"collection"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Malformed records skipped per collection.",
		}, []string{"collection"}),
		panics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_panics_total",
			Help:      "Recovered subscriber panics per collection.",
		}, []string{"collection"}),
		mirrored: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirrored_items",
			Help:      "Items currently mirrored per collection.",
		}, []string{"collection"}),
		mergesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Automatic duplicate merges triggered.",
		}),
		mergesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_failures_total",
			Help:      "Automatic duplicate merges that failed.",
		}),
	}
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) PollCompleted(collection string, documents int) {
	m.polls.WithLabelValues(collection).Inc()
	m.documents.WithLabelValues(collection).Add(float64(documents))
}

func (m *Metrics) PollFailed(collection string) {
	m.pollFailures.WithLabelValues(collection).Inc()
}

func (m *Metrics) RecordSkipped(collection string) {
	m.skipped.WithLabelValues(collection).Inc()
}

func (m *Metrics) ListenerPanicked(collection string) {
	m.panics.WithLabelValues(collection).Inc()
}

func (m *Metrics) Mirrored(collection string, items int) {
	m.mirrored.WithLabelValues(collection).Set(float64(items))
}

func (m *Metrics) MergeTriggered() { m.mergesTotal.Inc() }

func (m *Metrics) MergeFailed() { m.mergesFailed.Inc() }
