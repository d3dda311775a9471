package resilience

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
)

// Operation is one collaborator invocation attempt. The attempt number is
// zero-based.
type Operation func(ctx context.Context, attempt int) (json.RawMessage, error)

// Retrier runs operations under a bounded retry loop with exponential
// backoff. Safe for concurrent use.
type Retrier struct {
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier logging retry events to the given logger
func NewRetrier(logger zerolog.Logger) *Retrier {
	return &Retrier{
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Execute invokes op until it succeeds, a non-retryable error occurs, the
// policy is exhausted, or the context ends. It returns the payload, the
// number of attempts made, and the last classified error on failure.
func (r *Retrier) Execute(ctx context.Context, stage string, policy pipeline.RetryPolicy, op Operation) (json.RawMessage, int, error) {
	var lastErr *pipeline.StageError

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, attempt, lastErr
			}
			return nil, attempt, ClassifyStage(err, stage, attempt)
		}

		payload, err := op(ctx, attempt)
		if err == nil {
			return payload, attempt + 1, nil
		}

		lastErr = ClassifyStage(err, stage, attempt+1)
		if !lastErr.Category.Retryable() || attempt == policy.MaxRetries {
			return nil, attempt + 1, lastErr
		}

		delay := r.Delay(policy, attempt, lastErr.Category)
		r.logger.Warn().
			Str("event", pipeline.EventStageRetrying).
			Str("stage", stage).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(lastErr).
			Msg("Stage retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, attempt + 1, lastErr
		}
	}

	return nil, policy.MaxRetries + 1, lastErr
}

// Delay computes the backoff before the next attempt: exponential growth
// capped at the policy maximum, doubled for rate-limit pushback, plus
// optional jitter in [0, delay).
func (r *Retrier) Delay(policy pipeline.RetryPolicy, attempt int, category pipeline.ErrorCategory) time.Duration {
	delay := BackoffDelay(policy, attempt)
	if category == pipeline.CategoryRateLimited {
		delay *= 2
		if policy.MaxDelay > 0 && delay > 2*policy.MaxDelay {
			delay = 2 * policy.MaxDelay
		}
	}
	if policy.Jitter && delay > 0 {
		r.mu.Lock()
		delay += time.Duration(r.rng.Int63n(int64(delay)))
		r.mu.Unlock()
	}
	return delay
}

// BackoffDelay is the deterministic part of the retry delay:
// min(base * exp^attempt, max).
func BackoffDelay(policy pipeline.RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BaseDelay)
	delay := base * math.Pow(policy.ExponentialBase, float64(attempt))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
