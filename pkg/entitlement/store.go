package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists entitlement rows. Implementations map their storage
// errors to ErrNotFound / ErrAlreadyExists so the service can branch on
// sentinels.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Entitlement, error)
	GetByAPIKey(ctx context.Context, key string) (*Entitlement, error)
	GetByLicenseKey(ctx context.Context, key string) (*Entitlement, error)
	GetByGatewaySubID(ctx context.Context, gateway, subID string) (*Entitlement, error)

	// GetPendingSwitch returns the pending_payment sub-entitlement whose
	// ParentID is parentID, or ErrNotFound.
	GetPendingSwitch(ctx context.Context, parentID uuid.UUID) (*Entitlement, error)

	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Entitlement, error)

	// ListExpired returns active entitlements whose expiry is at or
	// before now. Lifetime entitlements (nil expiry) are never returned.
	ListExpired(ctx context.Context, now time.Time) ([]Entitlement, error)

	Create(ctx context.Context, ent *Entitlement) error
	Update(ctx context.Context, ent *Entitlement) error

	// KeyExists probes both key columns across all entitlements; issuance
	// uses it to guarantee global key uniqueness.
	KeyExists(ctx context.Context, key string) (bool, error)
}
