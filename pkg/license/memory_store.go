package license

import (
	"context"
	"sync"
)

// MemoryActivationStore is an in-memory ActivationStore for tests and
// single-process setups.
type MemoryActivationStore struct {
	mu     sync.Mutex
	lockMu sync.Mutex             // WithKeyLock critical section
	rows   map[string]*Activation // keyed by ID
}

// NewMemoryActivationStore returns an empty in-memory store.
func NewMemoryActivationStore() *MemoryActivationStore {
	return &MemoryActivationStore{rows: make(map[string]*Activation)}
}

var _ ActivationStore = (*MemoryActivationStore)(nil)

func (m *MemoryActivationStore) Find(ctx context.Context, key, site string) (*Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(key, site)
}

func (m *MemoryActivationStore) find(key, site string) (*Activation, error) {
	for _, row := range m.rows {
		if row.Key == key && row.Site == site {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrActivationNotFound
}

func (m *MemoryActivationStore) CountActive(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, row := range m.rows {
		if row.Key == key && row.Active {
			n++
		}
	}
	return n, nil
}

func (m *MemoryActivationStore) List(ctx context.Context, key string) ([]Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Activation
	for _, row := range m.rows {
		if row.Key == key {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *MemoryActivationStore) Create(ctx context.Context, act *Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *act
	m.rows[act.ID.String()] = &cp
	return nil
}

func (m *MemoryActivationStore) Update(ctx context.Context, act *Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[act.ID.String()]; !ok {
		return ErrActivationNotFound
	}
	cp := *act
	m.rows[act.ID.String()] = &cp
	return nil
}

// WithKeyLock serializes fn under a single process-wide lock. Good
// enough in memory; the postgres store holds a real per-key lock.
func (m *MemoryActivationStore) WithKeyLock(ctx context.Context, key string, fn func(ctx context.Context, s ActivationStore) error) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	return fn(ctx, m)
}
