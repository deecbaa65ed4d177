package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement is one purchase or subscription instance: the grant of a
// feature to an owner under a specific plan. Records are never deleted;
// purchase history is built from them.
type Entitlement struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	FeatureKey string // immutable after creation
	PlanID     string

	Status       Status
	PurchaseDate time.Time
	// ExpiresAt is nil for lifetime plans. It is authoritative only while
	// Status is active; other statuses ignore it for access control.
	ExpiresAt *time.Time
	AutoRenew bool

	// PendingSwitchPlanID is set while a plan switch awaits payment or
	// approval. The switch itself lives in a separate sub-entitlement
	// whose ParentID points back here.
	PendingSwitchPlanID string
	ParentID            *uuid.UUID

	// Issued at most once, lazily on first activation. Only an explicit
	// regenerate replaces them.
	APIKey     string
	LicenseKey string

	Gateway             string
	GatewayTxnID        string
	GatewaySubID        string

	FailureReason string
	FailedAt      *time.Time

	// OverrideActivationLimit lets an admin raise or lower the plan's
	// activation ceiling for this one entitlement.
	OverrideActivationLimit *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAccessible reports whether the entitlement currently grants access:
// active status and, for expiring plans, an expiry still in the future.
func (e *Entitlement) IsAccessible(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.ExpiresAt == nil {
		return true
	}
	return now.Before(*e.ExpiresAt)
}

// HasPendingSwitch reports whether a plan switch is awaiting completion.
func (e *Entitlement) HasPendingSwitch() bool {
	return e.PendingSwitchPlanID != ""
}

// IsSwitchPurchase reports whether this record is the sub-entitlement of
// a plan switch rather than a direct purchase.
func (e *Entitlement) IsSwitchPurchase() bool {
	return e.ParentID != nil
}

// Key returns whichever key was issued for this entitlement, preferring
// the API key when both exist.
func (e *Entitlement) Key() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	return e.LicenseKey
}
