// Package health tracks per-stage collaborator health from observed
// invocation outcomes and exposes it for the status surface and metrics.
package health

import (
	"sync"
	"time"
)

// Status is the derived health of one stage's collaborator
type Status string

const (
	StatusHealthy     Status = "HEALTHY"
	StatusDegraded    Status = "DEGRADED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// windowSize is how many recent outcomes feed the error-rate calculation
const windowSize = 20

const (
	unavailableConsecutive = 3
	unavailableRate        = 0.5
	degradedRate           = 0.1
)

type record struct {
	window      []bool // true = success, newest last
	consecutive int    // consecutive failures
	successes   int64
	failures    int64
	lastFailure time.Time
	lastSuccess time.Time
}

// Snapshot is one stage's health at a point in time
type Snapshot struct {
	Stage               string    `json:"stage"`
	Status              Status    `json:"status"`
	ErrorRate           float64   `json:"errorRate"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	TotalSuccesses      int64     `json:"totalSuccesses"`
	TotalFailures       int64     `json:"totalFailures"`
	LastSuccess         time.Time `json:"lastSuccess,omitempty"`
	LastFailure         time.Time `json:"lastFailure,omitempty"`
}

// Monitor aggregates invocation outcomes per stage. Safe for concurrent
// use. Cache hits and fallback results are not outcomes and must not be
// recorded.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]*record
	metrics *Metrics

	// now is swappable in tests
	now func() time.Time
}

// NewMonitor creates an empty monitor. Metrics may be nil.
func NewMonitor(metrics *Metrics) *Monitor {
	return &Monitor{
		records: make(map[string]*record),
		metrics: metrics,
		now:     time.Now,
	}
}

// RecordSuccess notes one successful collaborator call
func (m *Monitor) RecordSuccess(stage string) {
	m.mu.Lock()
	r := m.record(stage)
	r.successes++
	r.consecutive = 0
	r.lastSuccess = m.now()
	r.push(true)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StageOutcome(stage, "success")
	}
}

// RecordFailure notes one failed collaborator call
func (m *Monitor) RecordFailure(stage string) {
	m.mu.Lock()
	r := m.record(stage)
	r.failures++
	r.consecutive++
	r.lastFailure = m.now()
	r.push(false)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.StageOutcome(stage, "failure")
	}
}

// Status derives the health of one stage. Unknown stages are healthy.
func (m *Monitor) Status(stage string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[stage]
	if !ok {
		return StatusHealthy
	}
	return r.status()
}

// Snapshot returns the health of every observed stage
func (m *Monitor) Snapshot() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.records))
	for stage, r := range m.records {
		out = append(out, Snapshot{
			Stage:               stage,
			Status:              r.status(),
			ErrorRate:           r.errorRate(),
			ConsecutiveFailures: r.consecutive,
			TotalSuccesses:      r.successes,
			TotalFailures:       r.failures,
			LastSuccess:         r.lastSuccess,
			LastFailure:         r.lastFailure,
		})
	}
	return out
}

func (m *Monitor) record(stage string) *record {
	r, ok := m.records[stage]
	if !ok {
		r = &record{}
		m.records[stage] = r
	}
	return r
}

func (r *record) push(ok bool) {
	r.window = append(r.window, ok)
	if len(r.window) > windowSize {
		r.window = r.window[1:]
	}
}

func (r *record) errorRate() float64 {
	if len(r.window) == 0 {
		return 0
	}
	fails := 0
	for _, ok := range r.window {
		if !ok {
			fails++
		}
	}
	return float64(fails) / float64(len(r.window))
}

func (r *record) status() Status {
	rate := r.errorRate()
	switch {
	case r.consecutive >= unavailableConsecutive || rate > unavailableRate:
		return StatusUnavailable
	case rate > degradedRate:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
