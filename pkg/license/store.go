package license

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Activation is one site registered against a license key. Rows are
// soft-deleted on deactivation so the install history stays auditable;
// only Active rows count against the ceiling.
type Activation struct {
	ID   uuid.UUID
	Key  string
	Site string

	Active        bool
	ActivatedAt   time.Time
	DeactivatedAt *time.Time
}

// ActivationStore persists activations. WithKeyLock runs fn while
// holding an exclusive per-key lock and hands it a store bound to that
// critical section, which is how concurrent registrations for the same
// key are serialized against the ceiling.
type ActivationStore interface {
	Find(ctx context.Context, key, site string) (*Activation, error)
	CountActive(ctx context.Context, key string) (int, error)
	List(ctx context.Context, key string) ([]Activation, error)
	Create(ctx context.Context, act *Activation) error
	Update(ctx context.Context, act *Activation) error
	WithKeyLock(ctx context.Context, key string, fn func(ctx context.Context, s ActivationStore) error) error
}
