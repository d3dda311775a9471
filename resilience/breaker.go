package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
)

// BreakerState is the circuit breaker's position
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// CircuitBreaker guards one stage type's collaborator. Closed admits all
// calls; Open rejects without calling; HalfOpen admits probes after the
// recovery timeout. State changes only through Allow / RecordSuccess /
// RecordFailure.
type CircuitBreaker struct {
	stage    string
	settings pipeline.BreakerSettings
	logger   zerolog.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	// now is swappable in tests
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker for one stage type
func NewCircuitBreaker(stage string, settings pipeline.BreakerSettings, logger zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		stage:    stage,
		settings: settings.WithDefaults(),
		logger:   logger,
		state:    BreakerClosed,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker whose recovery
// timeout has elapsed moves to half-open and admits the probe. Rejections
// return ErrCircuitOpen without invoking anything.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout {
			b.transition(BreakerHalfOpen)
			return nil
		}
		return pipeline.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess reports a successful collaborator call
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.transition(BreakerClosed)
		}
	}
}

// RecordFailure reports a failed collaborator call. Failures that never
// reached the collaborator (open breaker, bulkhead rejection, cancelled
// context) must not be recorded.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		// one failed probe reopens immediately
		b.transition(BreakerOpen)
	}
}

// State returns the current breaker position
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition moves the breaker and resets counters. Caller holds the lock.
func (b *CircuitBreaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == BreakerOpen {
		b.openedAt = b.now()
	}
	pipeline.LogBreakerTransition(b.logger, b.stage, string(from), string(to))
}
