package quota

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory Store for tests and single-process
// setups. Expired buckets are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryStoreClock overrides the time source, used by tests to age
// buckets out.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &memoryBucket{expiresAt: now.Add(ttl)}
		m.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || m.now().After(b.expiresAt) {
		return 0, nil
	}
	return b.count, nil
}
