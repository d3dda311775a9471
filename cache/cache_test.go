package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend errors on every operation
type failingBackend struct{}

func (failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (failingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("backend down")
}

func (failingBackend) Delete(ctx context.Context, key string) error {
	return errors.New("backend down")
}

func (failingBackend) DeleteCategory(ctx context.Context, category string) error {
	return errors.New("backend down")
}

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager(NewMemoryBackend(10), nil, zerolog.Nop(), nil)
	ctx := context.Background()

	m.Put(ctx, "sequence_analysis", "fp1", []byte(`{"v":1}`))

	value, ok := m.Get(ctx, "sequence_analysis", "fp1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), value)
}

func TestManager_Miss(t *testing.T) {
	m := NewManager(NewMemoryBackend(10), nil, zerolog.Nop(), nil)

	_, ok := m.Get(context.Background(), "sequence_analysis", "absent")
	assert.False(t, ok)
}

func TestManager_CategoriesAreIsolated(t *testing.T) {
	m := NewManager(NewMemoryBackend(10), nil, zerolog.Nop(), nil)
	ctx := context.Background()

	m.Put(ctx, "alpha", "same-key", []byte("a"))
	m.Put(ctx, "beta", "same-key", []byte("b"))

	a, ok := m.Get(ctx, "alpha", "same-key")
	require.True(t, ok)
	b, ok := m.Get(ctx, "beta", "same-key")
	require.True(t, ok)
	assert.NotEqual(t, a, b)
}

func TestManager_TTLOverride(t *testing.T) {
	backend := NewMemoryBackend(10)
	now := time.Now()
	backend.now = func() time.Time { return now }
	m := NewManager(backend, nil, zerolog.Nop(), nil)
	ctx := context.Background()

	m.Put(ctx, "sequence_analysis", "fp1", []byte("x"), WithTTL(time.Second))

	now = now.Add(2 * time.Second)
	_, ok := m.Get(ctx, "sequence_analysis", "fp1")
	assert.False(t, ok, "per-call TTL wins over the category default")
}

func TestManager_CategoryTTLTable(t *testing.T) {
	m := NewManager(NewMemoryBackend(10), map[string]time.Duration{"alpha": time.Minute}, zerolog.Nop(), nil)

	assert.Equal(t, time.Minute, m.TTL("alpha"))
	assert.Equal(t, DefaultTTL, m.TTL("unlisted"))
}

func TestManager_FailOpen(t *testing.T) {
	m := NewManager(failingBackend{}, nil, zerolog.Nop(), nil)
	ctx := context.Background()

	// Errors degrade to a miss on read and a no-op on write
	_, ok := m.Get(ctx, "alpha", "k")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		m.Put(ctx, "alpha", "k", []byte("x"))
		m.Invalidate(ctx, "alpha", "k")
		m.InvalidateCategory(ctx, "alpha")
	})
}

func TestManager_Invalidate(t *testing.T) {
	m := NewManager(NewMemoryBackend(10), nil, zerolog.Nop(), nil)
	ctx := context.Background()

	m.Put(ctx, "alpha", "k", []byte("x"))
	m.Invalidate(ctx, "alpha", "k")

	_, ok := m.Get(ctx, "alpha", "k")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "alpha:fp", Key("alpha", "fp"))
}
