package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is a bounded in-process backend with LRU eviction and
// lazy expiry. Suited to single-process deployments and tests.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // most recently used at front

	// now is swappable in tests
	now func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend creates a backend holding at most capacity entries
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBackend{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get implements Backend. Expired entries are removed and reported as a
// miss.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*memoryEntry)
	if !b.now().Before(entry.expiresAt) {
		b.remove(elem)
		return nil, nil
	}
	b.order.MoveToFront(elem)
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements Backend, evicting the least recently used entry at
// capacity.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	expires := b.now().Add(ttl)

	if elem, ok := b.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = stored
		entry.expiresAt = expires
		b.order.MoveToFront(elem)
		return nil
	}

	if len(b.entries) >= b.capacity {
		if oldest := b.order.Back(); oldest != nil {
			b.remove(oldest)
		}
	}
	elem := b.order.PushFront(&memoryEntry{key: key, value: stored, expiresAt: expires})
	b.entries[key] = elem
	return nil
}

// Delete implements Backend
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if elem, ok := b.entries[key]; ok {
		b.remove(elem)
	}
	return nil
}

// DeleteCategory implements Backend by prefix scan
func (b *MemoryBackend) DeleteCategory(_ context.Context, category string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := category + ":"
	for key, elem := range b.entries {
		if strings.HasPrefix(key, prefix) {
			b.remove(elem)
		}
	}
	return nil
}

// Len returns the current entry count
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// remove drops an element. Caller holds the lock.
func (b *MemoryBackend) remove(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(b.entries, entry.key)
	b.order.Remove(elem)
}
