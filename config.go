package pipeline

import "time"

// RetryPolicy bounds the retry loop for one stage
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// stage is invoked at most MaxRetries+1 times.
	MaxRetries int

	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64

	// Jitter adds a random delay in [0, computed delay) on top of the
	// deterministic backoff.
	Jitter bool
}

// DefaultRetryPolicy mirrors the stock stage retry parameters
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	BaseDelay:       time.Second,
	MaxDelay:        60 * time.Second,
	ExponentialBase: 2.0,
	Jitter:          true,
}

func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.ExponentialBase <= 1 {
		p.ExponentialBase = DefaultRetryPolicy.ExponentialBase
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// BreakerSettings configures a stage's circuit breaker
type BreakerSettings struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in half-open that
	// closes the breaker again.
	SuccessThreshold int

	// RecoveryTimeout is how long an open breaker blocks calls before
	// admitting a half-open probe.
	RecoveryTimeout time.Duration
}

// DefaultBreakerSettings matches the stock breaker thresholds
var DefaultBreakerSettings = BreakerSettings{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	RecoveryTimeout:  60 * time.Second,
}

func (s BreakerSettings) WithDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultBreakerSettings.FailureThreshold
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = DefaultBreakerSettings.SuccessThreshold
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = DefaultBreakerSettings.RecoveryTimeout
	}
	return s
}

// BulkheadSettings bounds concurrent collaborator calls for one stage type
type BulkheadSettings struct {
	// MaxConcurrent is the number of simultaneous in-flight invocations.
	MaxConcurrent int

	// QueueSize caps how many invocations may wait for a slot. Zero picks
	// up the default; negative means no waiting, admission is try-acquire
	// only.
	QueueSize int

	// AcquireTimeout bounds how long a queued invocation waits for a slot.
	AcquireTimeout time.Duration
}

// DefaultBulkheadSettings matches the stock bulkhead bounds
var DefaultBulkheadSettings = BulkheadSettings{
	MaxConcurrent:  10,
	QueueSize:      100,
	AcquireTimeout: 30 * time.Second,
}

func (s BulkheadSettings) WithDefaults() BulkheadSettings {
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = DefaultBulkheadSettings.MaxConcurrent
	}
	if s.QueueSize == 0 {
		s.QueueSize = DefaultBulkheadSettings.QueueSize
	}
	if s.QueueSize < 0 {
		s.QueueSize = 0
	}
	if s.AcquireTimeout <= 0 {
		s.AcquireTimeout = DefaultBulkheadSettings.AcquireTimeout
	}
	return s
}

// DefaultStageTimeout bounds a single collaborator invocation when the
// descriptor does not set one.
const DefaultStageTimeout = 2 * time.Minute
