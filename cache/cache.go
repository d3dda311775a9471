// Package cache provides the TTL result cache used to serve repeated
// stage invocations without calling the collaborator again. The manager
// is fail-open: backend errors degrade to cache misses and never fail the
// invocation path.
package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
)

// Default category TTLs. Per-call overrides win.
var DefaultTTLs = map[string]time.Duration{
	pipeline.StageSequenceAnalysis: 24 * time.Hour,
	pipeline.StageStructureLookup:  12 * time.Hour,
	pipeline.StageLiteratureSearch: 6 * time.Hour,
	pipeline.StageCandidateLookup:  6 * time.Hour,
	"report":         time.Hour,
	"reference_data": 7 * 24 * time.Hour,
}

// DefaultTTL applies to categories missing from the table
const DefaultTTL = time.Hour

// Backend stores cache entries. Get returns (nil, nil) on a miss; an
// expired entry is a miss. Implementations must be safe for concurrent
// use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteCategory(ctx context.Context, category string) error
}

// PutOption overrides per-call cache behavior
type PutOption func(*putOptions)

type putOptions struct {
	ttl time.Duration
}

// WithTTL overrides the category TTL for one Put
func WithTTL(ttl time.Duration) PutOption {
	return func(o *putOptions) {
		o.ttl = ttl
	}
}

// Manager is the category-aware cache frontend
type Manager struct {
	backend Backend
	ttls    map[string]time.Duration
	logger  zerolog.Logger
	metrics *Metrics
}

// NewManager creates a cache manager over the given backend. A nil ttls
// map uses the defaults; metrics may be nil.
func NewManager(backend Backend, ttls map[string]time.Duration, logger zerolog.Logger, metrics *Metrics) *Manager {
	if ttls == nil {
		ttls = DefaultTTLs
	}
	return &Manager{
		backend: backend,
		ttls:    ttls,
		logger:  logger,
		metrics: metrics,
	}
}

// Key builds the storage key for a category and entry key
func Key(category, key string) string {
	return category + ":" + key
}

// Get retrieves a cached value. Misses and backend errors both return
// (nil, false); errors are logged.
func (m *Manager) Get(ctx context.Context, category, key string) ([]byte, bool) {
	value, err := m.backend.Get(ctx, Key(category, key))
	if err != nil {
		pipeline.LogCacheError(m.logger, "get", category, err)
		m.miss(category)
		return nil, false
	}
	if value == nil {
		m.miss(category)
		return nil, false
	}
	if m.metrics != nil {
		m.metrics.Hit(category)
	}
	return value, true
}

// Put stores a value under the category's TTL. Backend errors are logged
// and swallowed.
func (m *Manager) Put(ctx context.Context, category, key string, value []byte, opts ...PutOption) {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	ttl := o.ttl
	if ttl <= 0 {
		ttl = m.TTL(category)
	}
	if err := m.backend.Set(ctx, Key(category, key), value, ttl); err != nil {
		pipeline.LogCacheError(m.logger, "set", category, err)
	}
}

// Invalidate removes one entry
func (m *Manager) Invalidate(ctx context.Context, category, key string) {
	if err := m.backend.Delete(ctx, Key(category, key)); err != nil {
		pipeline.LogCacheError(m.logger, "delete", category, err)
	}
}

// InvalidateCategory removes every entry in a category
func (m *Manager) InvalidateCategory(ctx context.Context, category string) {
	if err := m.backend.DeleteCategory(ctx, category); err != nil {
		pipeline.LogCacheError(m.logger, "delete_category", category, err)
	}
}

// TTL returns the effective TTL for a category
func (m *Manager) TTL(category string) time.Duration {
	if ttl, ok := m.ttls[category]; ok {
		return ttl
	}
	return DefaultTTL
}

func (m *Manager) miss(category string) {
	if m.metrics != nil {
		m.metrics.Miss(category)
	}
}
