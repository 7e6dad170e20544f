package stepauth

import "sync/atomic"

// MetricID defines a public type used by stepauth APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure
	// MetricLoginSlowed is an exported constant or variable used by the authentication engine.
	MetricLoginSlowed
	// MetricCaptchaRejected is an exported constant or variable used by the authentication engine.
	MetricCaptchaRejected
	// MetricCaptchaUnavailable is an exported constant or variable used by the authentication engine.
	MetricCaptchaUnavailable
	// MetricChallengeIssued is an exported constant or variable used by the authentication engine.
	MetricChallengeIssued
	// MetricChallengePending is an exported constant or variable used by the authentication engine.
	MetricChallengePending
	// MetricChallengeConfirmed is an exported constant or variable used by the authentication engine.
	MetricChallengeConfirmed
	// MetricChallengeFailed is an exported constant or variable used by the authentication engine.
	MetricChallengeFailed
	// MetricSessionIssued is an exported constant or variable used by the authentication engine.
	MetricSessionIssued
	// MetricResetRequested is an exported constant or variable used by the authentication engine.
	MetricResetRequested
	// MetricResetCompleted is an exported constant or variable used by the authentication engine.
	MetricResetCompleted
	// MetricResetRejected is an exported constant or variable used by the authentication engine.
	MetricResetRejected
	// MetricMailDispatchFailed is an exported constant or variable used by the authentication engine.
	MetricMailDispatchFailed
	metricIDCount
)

// Metrics holds the engine's in-process counters. Counters are observability
// only; no decision in the engine reads them back.
type Metrics struct {
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot defines a public type used by stepauth APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc describes the inc operation and its observable behavior.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot describes the snapshot operation and its observable behavior.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
