package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]Entitlement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]Entitlement)}
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *MemoryStore) GetByAPIKey(_ context.Context, key string) (*Entitlement, error) {
	return m.find(func(e Entitlement) bool { return key != "" && e.APIKey == key })
}

func (m *MemoryStore) GetByLicenseKey(_ context.Context, key string) (*Entitlement, error) {
	return m.find(func(e Entitlement) bool { return key != "" && e.LicenseKey == key })
}

func (m *MemoryStore) GetByGatewaySubID(_ context.Context, gateway, subID string) (*Entitlement, error) {
	return m.find(func(e Entitlement) bool {
		return subID != "" && e.Gateway == gateway && e.GatewaySubID == subID
	})
}

func (m *MemoryStore) GetPendingSwitch(_ context.Context, parentID uuid.UUID) (*Entitlement, error) {
	return m.find(func(e Entitlement) bool {
		return e.ParentID != nil && *e.ParentID == parentID && e.Status == StatusPendingPayment
	})
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entitlement
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entitlement
	for _, row := range m.rows {
		if row.Status == StatusActive && row.ExpiresAt != nil && !row.ExpiresAt.After(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, ent *Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rows[ent.ID]; exists {
		return ErrAlreadyExists
	}
	m.rows[ent.ID] = *ent
	return nil
}

func (m *MemoryStore) Update(_ context.Context, ent *Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rows[ent.ID]; !exists {
		return ErrNotFound
	}
	m.rows[ent.ID] = *ent
	return nil
}

func (m *MemoryStore) KeyExists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows {
		if row.APIKey == key || row.LicenseKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) find(match func(Entitlement) bool) (*Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows {
		if match(row) {
			out := row
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
