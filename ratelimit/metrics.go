/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector represents a collector of rate-limiting metrics.
type MetricsCollector interface {
	// IncRequests increments the total number of evaluated requests.
	IncRequests(tier ClientTier, allowed bool)

	// IncRejects increments the total number of denied requests.
	IncRejects(tier ClientTier)

	// IncFailOpens increments the total number of fail-open decisions.
	IncFailOpens()

	// IncStateReinits increments the total number of re-initialized
	// malformed bucket states.
	IncStateReinits()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the rate limiter.
type PrometheusMetrics struct {
	RequestsTotal     *prometheus.CounterVec
	RejectsTotal      *prometheus.CounterVec
	FailOpensTotal    prometheus.Counter
	StateReinitsTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_requests_total",
			Help:        "Total number of requests evaluated by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{"tier", "allowed"},
	)
	rejectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_rejects_total",
			Help:        "Number of requests denied by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{"tier"},
	)
	failOpensTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_fail_open_total",
			Help:        "Number of decisions allowed because the shared store was not consultable.",
			ConstLabels: opts.ConstLabels,
		},
	)
	stateReinitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_state_reinit_total",
			Help:        "Number of malformed bucket states that were re-initialized.",
			ConstLabels: opts.ConstLabels,
		},
	)
	return &PrometheusMetrics{
		RequestsTotal:     requestsTotal,
		RejectsTotal:      rejectsTotal,
		FailOpensTotal:    failOpensTotal,
		StateReinitsTotal: stateReinitsTotal,
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.RequestsTotal,
		pm.RejectsTotal,
		pm.FailOpensTotal,
		pm.StateReinitsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.RequestsTotal)
	prometheus.Unregister(pm.RejectsTotal)
	prometheus.Unregister(pm.FailOpensTotal)
	prometheus.Unregister(pm.StateReinitsTotal)
}

// IncRequests increments the total number of evaluated requests.
func (pm *PrometheusMetrics) IncRequests(tier ClientTier, allowed bool) {
	pm.RequestsTotal.With(prometheus.Labels{
		"tier":    string(tier),
		"allowed": strconv.FormatBool(allowed),
	}).Inc()
}

// IncRejects increments the total number of denied requests.
func (pm *PrometheusMetrics) IncRejects(tier ClientTier) {
	pm.RejectsTotal.With(prometheus.Labels{"tier": string(tier)}).Inc()
}

// IncFailOpens increments the total number of fail-open decisions.
func (pm *PrometheusMetrics) IncFailOpens() {
	pm.FailOpensTotal.Inc()
}

// IncStateReinits increments the total number of re-initialized bucket states.
func (pm *PrometheusMetrics) IncStateReinits() {
	pm.StateReinitsTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncRequests(ClientTier, bool) {}
func (disabledMetrics) IncRejects(ClientTier)        {}
func (disabledMetrics) IncFailOpens()                {}
func (disabledMetrics) IncStateReinits()             {}

// DisabledMetrics is a no-op MetricsCollector.
var DisabledMetrics MetricsCollector = disabledMetrics{}
