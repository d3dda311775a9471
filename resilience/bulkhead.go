package resilience

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/meridianbio/pipeline"
)

// Bulkhead bounds concurrent collaborator calls for one stage type. A
// fixed number of slots admit callers; up to QueueSize callers may wait
// for a slot, bounded by the acquire timeout. Everyone else is rejected
// immediately.
type Bulkhead struct {
	stage    string
	settings pipeline.BulkheadSettings

	sem      *semaphore.Weighted
	waiters  atomic.Int64
	inflight atomic.Int64
}

// NewBulkhead creates a bulkhead for one stage type
func NewBulkhead(stage string, settings pipeline.BulkheadSettings) *Bulkhead {
	settings = settings.WithDefaults()
	return &Bulkhead{
		stage:    stage,
		settings: settings,
		sem:      semaphore.NewWeighted(int64(settings.MaxConcurrent)),
	}
}

// Acquire claims a slot, waiting up to the configured timeout when the
// queue has room. Rejections return ErrBulkheadTimeout; the collaborator
// is never called on rejection.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.inflight.Add(1)
		return nil
	}

	if b.settings.QueueSize == 0 {
		return pipeline.ErrBulkheadTimeout
	}
	if b.waiters.Add(1) > int64(b.settings.QueueSize) {
		b.waiters.Add(-1)
		return pipeline.ErrBulkheadTimeout
	}
	defer b.waiters.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, b.settings.AcquireTimeout)
	defer cancel()

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.ErrBulkheadTimeout
	}
	b.inflight.Add(1)
	return nil
}

// Release returns a slot claimed by Acquire
func (b *Bulkhead) Release() {
	b.inflight.Add(-1)
	b.sem.Release(1)
}

// InFlight returns the current number of admitted callers
func (b *Bulkhead) InFlight() int {
	return int(b.inflight.Load())
}

// Waiting returns the current number of queued callers
func (b *Bulkhead) Waiting() int {
	return int(b.waiters.Load())
}
