package generation

import (
	"sync/atomic"
	"time"
)

// TimeoutConfig sizes attempt deadlines and the stall window
type TimeoutConfig struct {
	Initial        time.Duration
	PerRetry       time.Duration
	Maximum        time.Duration
	ActivityWindow time.Duration
}

// DefaultTimeoutConfig returns 120s initial, +60s per retry, 600s cap, 30s stall window
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Initial:        120 * time.Second,
		PerRetry:       60 * time.Second,
		Maximum:        600 * time.Second,
		ActivityWindow: 30 * time.Second,
	}
}

// ActivityMonitor tracks stream liveness. It only answers questions; the
// orchestrator decides when to cancel. RecordActivity may be called from the
// stream callback while another goroutine polls ShouldTimeout.
type ActivityMonitor struct {
	cfg          TimeoutConfig
	now          func() time.Time
	lastActivity atomic.Int64
}

// NewActivityMonitor creates a monitor. now may be nil to use time.Now.
func NewActivityMonitor(cfg TimeoutConfig, now func() time.Time) *ActivityMonitor {
	if now == nil {
		now = time.Now
	}
	m := &ActivityMonitor{cfg: cfg, now: now}
	m.RecordActivity()
	return m
}

// RecordActivity marks the current instant as the last time data arrived
func (m *ActivityMonitor) RecordActivity() {
	m.lastActivity.Store(m.now().UnixNano())
}

// SinceLastActivity returns the gap since the last recorded activity
func (m *ActivityMonitor) SinceLastActivity() time.Duration {
	return m.now().Sub(time.Unix(0, m.lastActivity.Load()))
}

// ShouldTimeout reports a stall longer than the activity window, regardless
// of how long the attempt has been running overall.
func (m *ActivityMonitor) ShouldTimeout() bool {
	return m.SinceLastActivity() > m.cfg.ActivityWindow
}

// TimeoutFor is the overall deadline for the given 0-based retry attempt
func (m *ActivityMonitor) TimeoutFor(retryAttempt int) time.Duration {
	return timeoutFor(m.cfg, retryAttempt)
}

// ActivityWindow returns the configured stall window
func (m *ActivityMonitor) ActivityWindow() time.Duration {
	return m.cfg.ActivityWindow
}

func timeoutFor(cfg TimeoutConfig, retryAttempt int) time.Duration {
	timeout := cfg.Initial + time.Duration(retryAttempt)*cfg.PerRetry
	if timeout > cfg.Maximum {
		return cfg.Maximum
	}
	return timeout
}
