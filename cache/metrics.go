/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is an interface for collecting metrics of the tiered cache.
type MetricsCollector interface {
	// IncHits increments the counter of cache hits in the given tier
	// ("request" or "shared").
	IncHits(tier string)

	// IncMisses increments the counter of cache misses.
	IncMisses()

	// IncComputes increments the counter of executed compute functions.
	// protected tells whether the compute ran under the distributed lock.
	IncComputes(protected bool)

	// AddInvalidatedEntries increments the counter of invalidated entries.
	AddInvalidatedEntries(count int)
}

// PrometheusMetrics represents the tiered cache metrics for Prometheus.
type PrometheusMetrics struct {
	HitsTotal               *prometheus.CounterVec
	MissesTotal             prometheus.Counter
	ComputesTotal           *prometheus.CounterVec
	InvalidatedEntriesTotal prometheus.Counter
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	hitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "The total number of cache hits per tier.",
	}, []string{"tier"})
	missesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "The total number of cache misses.",
	})
	computesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_computes_total",
		Help:      "The total number of executed compute functions.",
	}, []string{"protected"})
	invalidatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidated_entries_total",
		Help:      "The total number of invalidated cache entries.",
	})
	return &PrometheusMetrics{
		HitsTotal:               hitsTotal,
		MissesTotal:             missesTotal,
		ComputesTotal:           computesTotal,
		InvalidatedEntriesTotal: invalidatedTotal,
	}
}

// MustRegister registers metrics in Prometheus client's registry.
func (m *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		m.HitsTotal,
		m.MissesTotal,
		m.ComputesTotal,
		m.InvalidatedEntriesTotal,
	)
}

// Unregister unregisters metrics in Prometheus client's registry.
func (m *PrometheusMetrics) Unregister() {
	prometheus.Unregister(m.HitsTotal)
	prometheus.Unregister(m.MissesTotal)
	prometheus.Unregister(m.ComputesTotal)
	prometheus.Unregister(m.InvalidatedEntriesTotal)
}

// IncHits implements MetricsCollector.
func (m *PrometheusMetrics) IncHits(tier string) {
	m.HitsTotal.WithLabelValues(tier).Inc()
}

// IncMisses implements MetricsCollector.
func (m *PrometheusMetrics) IncMisses() {
	m.MissesTotal.Inc()
}

// IncComputes implements MetricsCollector.
func (m *PrometheusMetrics) IncComputes(protected bool) {
	label := "true"
	if !protected {
		label = "false"
	}
	m.ComputesTotal.WithLabelValues(label).Inc()
}

// AddInvalidatedEntries implements MetricsCollector.
func (m *PrometheusMetrics) AddInvalidatedEntries(count int) {
	m.InvalidatedEntriesTotal.Add(float64(count))
}

// DisabledMetrics is a no-op MetricsCollector.
var DisabledMetrics MetricsCollector = disabledMetrics{}

type disabledMetrics struct{}

func (disabledMetrics) IncHits(string)            {}
func (disabledMetrics) IncMisses()                {}
func (disabledMetrics) IncComputes(bool)          {}
func (disabledMetrics) AddInvalidatedEntries(int) {}
