package resilience

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
)

// Registry holds the per-stage-type breaker and bulkhead singletons.
// Entries are created lazily on first use and shared by every workflow
// touching that stage type.
type Registry struct {
	logger zerolog.Logger

	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	bulkheads map[string]*Bulkhead
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		breakers:  make(map[string]*CircuitBreaker),
		bulkheads: make(map[string]*Bulkhead),
	}
}

// Breaker returns the circuit breaker for a stage type, creating it with
// the given settings on first use. Later calls ignore the settings.
func (r *Registry) Breaker(stage string, settings pipeline.BreakerSettings) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[stage]
	if !ok {
		cb = NewCircuitBreaker(stage, settings, r.logger)
		r.breakers[stage] = cb
	}
	return cb
}

// Bulkhead returns the bulkhead for a stage type, creating it with the
// given settings on first use. Later calls ignore the settings.
func (r *Registry) Bulkhead(stage string, settings pipeline.BulkheadSettings) *Bulkhead {
	r.mu.Lock()
	defer r.mu.Unlock()
	bh, ok := r.bulkheads[stage]
	if !ok {
		bh = NewBulkhead(stage, settings)
		r.bulkheads[stage] = bh
	}
	return bh
}

// BreakerStates returns a snapshot of every known breaker's position,
// keyed by stage name.
func (r *Registry) BreakerStates() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.breakers))
	for stage, cb := range r.breakers {
		out[stage] = cb.State()
	}
	return out
}
