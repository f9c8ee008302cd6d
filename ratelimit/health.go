/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
)

// HealthState is a classification of the backend load.
type HealthState string

// Backend health states.
const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthCritical HealthState = "critical"
)

// LoadProbe samples the current backend load signal (for example, the
// pending-work queue depth).
type LoadProbe func(ctx context.Context) (load float64, err error)

// Default health monitoring parameters.
const (
	DefaultHealthCheckInterval     = 10 * time.Second
	DefaultHealthDegradedThreshold = 500
	DefaultHealthCriticalThreshold = 1000
)

// HealthMonitorOpts represents options for the HealthMonitor.
type HealthMonitorOpts struct {
	// CheckInterval limits how often the probe is invoked.
	// Between invocations the last classification is returned from cache.
	CheckInterval time.Duration

	// DegradedThreshold and CriticalThreshold classify the sampled load.
	DegradedThreshold float64
	CriticalThreshold float64

	Logger log.FieldLogger
}

// HealthMonitor classifies the backend load into a HealthState, sampling the
// load probe at most once per check interval. If the probe itself fails, the
// monitor reports degraded rather than healthy, so downstream limiters
// tighten under uncertainty. The failure is not cached: the next call probes
// again.
type HealthMonitor struct {
	probe             LoadProbe
	checkInterval     time.Duration
	degradedThreshold float64
	criticalThreshold float64
	logger            log.FieldLogger

	nowFunc func() time.Time

	mu        sync.Mutex
	state     HealthState
	lastCheck time.Time
}

// NewHealthMonitor creates a new HealthMonitor for the given probe.
// A nil probe yields a monitor that always reports healthy.
func NewHealthMonitor(probe LoadProbe, opts HealthMonitorOpts) *HealthMonitor {
	if probe == nil {
		probe = func(ctx context.Context) (float64, error) { return 0, nil }
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultHealthCheckInterval
	}
	if opts.DegradedThreshold <= 0 {
		opts.DegradedThreshold = DefaultHealthDegradedThreshold
	}
	if opts.CriticalThreshold <= 0 {
		opts.CriticalThreshold = DefaultHealthCriticalThreshold
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &HealthMonitor{
		probe:             probe,
		checkInterval:     opts.CheckInterval,
		degradedThreshold: opts.DegradedThreshold,
		criticalThreshold: opts.CriticalThreshold,
		logger:            opts.Logger,
		nowFunc:           time.Now,
		state:             HealthHealthy,
	}
}

// CurrentHealth returns the current backend health classification.
// The mutex makes concurrent callers inside one instance share a single
// probe invocation per check interval.
func (m *HealthMonitor) CurrentHealth(ctx context.Context) HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.checkInterval {
		return m.state
	}

	load, err := m.probe(ctx)
	if err != nil {
		m.logger.Warn("backend load probe failed, reporting degraded health",
			log.Error(err))
		return HealthDegraded
	}

	m.state = m.classify(load)
	m.lastCheck = now
	return m.state
}

func (m *HealthMonitor) classify(load float64) HealthState {
	switch {
	case load > m.criticalThreshold:
		return HealthCritical
	case load > m.degradedThreshold:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
