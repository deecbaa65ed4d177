package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/plan"
)

// KeyIssuer issues an API or license key onto ent when its plan requires
// one. Implementations mutate ent and leave persistence to the caller.
// Must be a no-op when a key is already present.
type KeyIssuer interface {
	IssueIfRequired(ctx context.Context, ent *Entitlement, p plan.Plan) (issued bool, err error)
}

// Notifier receives lifecycle events for side channels such as purchase
// confirmation emails. Failures there must never fail the transition, so
// implementations report errors through their own logging.
type Notifier interface {
	EntitlementActivated(ctx context.Context, ent *Entitlement)
	EntitlementFailed(ctx context.Context, ent *Entitlement)
}

// Service is the lifecycle engine: every legal status transition of an
// entitlement goes through here.
type Service interface {
	Purchase(ctx context.Context, ownerID uuid.UUID, planID, gateway string) (*Entitlement, error)
	Get(ctx context.Context, id uuid.UUID) (*Entitlement, error)
	GetByAPIKey(ctx context.Context, key string) (*Entitlement, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Entitlement, error)

	Activate(ctx context.Context, id uuid.UUID, txnRef string, force bool) error
	CompletePayment(ctx context.Context, id uuid.UUID, txnRef, subID string) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason, txnRef string) error
	CancelByGatewaySubID(ctx context.Context, gateway, subID string) error

	RequestSwitch(ctx context.Context, id uuid.UUID, newPlanID string) (*Entitlement, error)
	ApproveSwitch(ctx context.Context, parentID uuid.UUID) error

	Cancel(ctx context.Context, id uuid.UUID) error
	ToggleAutoRenew(ctx context.Context, id uuid.UUID, enabled bool) error

	ExpireDue(ctx context.Context) (int, error)
	ForceStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type service struct {
	store    Store
	catalog  *plan.Catalog
	issuer   KeyIssuer
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the lifecycle engine. Store, catalog, and issuer are
// required; a nil notifier simply disables notifications.
func NewService(store Store, catalog *plan.Catalog, issuer KeyIssuer, opts ...ServiceOption) Service {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if catalog == nil {
		panic("entitlement: plan catalog is required")
	}
	if issuer == nil {
		panic("entitlement: KeyIssuer is required")
	}

	s := &service{
		store:   store,
		catalog: catalog,
		issuer:  issuer,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purchase creates a pending_payment entitlement for the given plan. It
// is the entry point of every checkout; the record stays pending until a
// gateway event or an admin approval activates it.
func (s *service) Purchase(ctx context.Context, ownerID uuid.UUID, planID, gateway string) (*Entitlement, error) {
	p, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlanInactive
	}

	now := s.now()
	ent := &Entitlement{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		FeatureKey:   p.FeatureKey,
		PlanID:       p.ID,
		Status:       StatusPendingPayment,
		PurchaseDate: now,
		Gateway:      gateway,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Entitlement, error) {
	return s.store.Get(ctx, id)
}

func (s *service) GetByAPIKey(ctx context.Context, key string) (*Entitlement, error) {
	return s.store.GetByAPIKey(ctx, key)
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Entitlement, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Activate confirms payment for a pending entitlement: status becomes
// active, expiry is computed from the purchase date and plan duration
// (nil for lifetime plans), and a key is issued when the plan requires
// one.
//
// Activating an already-active entitlement returns ErrAlreadyActive
// without touching expiry or keys, which makes duplicate webhook
// deliveries harmless. force allows admins to re-activate records in
// terminal statuses.
func (s *service) Activate(ctx context.Context, id uuid.UUID, txnRef string, force bool) error {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if ent.Status == StatusActive {
		return ErrAlreadyActive
	}
	if !force && ent.Status != StatusPendingPayment {
		return fmt.Errorf("%w: status is %s", ErrNotPending, ent.Status)
	}

	p, err := s.catalog.Get(ent.PlanID)
	if err != nil {
		return err
	}

	return s.activate(ctx, ent, p, txnRef)
}

func (s *service) activate(ctx context.Context, ent *Entitlement, p plan.Plan, txnRef string) error {
	now := s.now()

	ent.Status = StatusActive
	ent.ExpiresAt = p.ExpiryFrom(ent.PurchaseDate)
	if txnRef != "" && ent.GatewayTxnID == "" {
		ent.GatewayTxnID = txnRef
	}
	if p.IsRecurring() {
		ent.AutoRenew = true
	}
	ent.UpdatedAt = now

	issued, err := s.issuer.IssueIfRequired(ctx, ent, p)
	if err != nil {
		return err
	}

	if err := s.store.Update(ctx, ent); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "entitlement activated",
		"entitlement_id", ent.ID, "plan_id", ent.PlanID, "key_issued", issued)

	if s.notifier != nil {
		s.notifier.EntitlementActivated(ctx, ent)
	}
	return nil
}

// CompletePayment is the webhook-facing activation: for a direct purchase
// it activates the entitlement, for a switch sub-entitlement it completes
// the switch. Duplicate deliveries resolve to success.
//
// subID is the provider-side subscription identifier carried by the
// success event; it is recorded before activation so later
// subscription-cancelled webhooks can find the record through
// CancelByGatewaySubID.
func (s *service) CompletePayment(ctx context.Context, id uuid.UUID, txnRef, subID string) error {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if subID != "" && ent.GatewaySubID == "" {
		ent.GatewaySubID = subID
		ent.UpdatedAt = s.now()
		if err := s.store.Update(ctx, ent); err != nil {
			return err
		}
	}

	if ent.IsSwitchPurchase() {
		err = s.approveSwitch(ctx, *ent.ParentID, txnRef)
	} else {
		err = s.Activate(ctx, id, txnRef, false)
	}
	if errors.Is(err, ErrAlreadyActive) || errors.Is(err, ErrNoSwitchPending) {
		return nil
	}
	return err
}

// RecordFailure marks a payment as failed with the gateway's reason.
// Issued keys are deliberately kept: a failed renewal must not silently
// revoke access that is separately gated on status. Recording a failure
// on an already-failed entitlement is a no-op.
func (s *service) RecordFailure(ctx context.Context, id uuid.UUID, reason, txnRef string) error {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if ent.Status == StatusFailed {
		return nil
	}
	if !ent.Status.CanTransition(StatusFailed) {
		return &InvalidTransitionError{From: ent.Status, To: StatusFailed}
	}

	now := s.now()
	ent.Status = StatusFailed
	ent.FailureReason = reason
	ent.FailedAt = &now
	if txnRef != "" && ent.GatewayTxnID == "" {
		ent.GatewayTxnID = txnRef
	}
	ent.UpdatedAt = now

	if err := s.store.Update(ctx, ent); err != nil {
		return err
	}

	s.log.WarnContext(ctx, "entitlement payment failed",
		"entitlement_id", ent.ID, "reason", reason)

	if s.notifier != nil {
		s.notifier.EntitlementFailed(ctx, ent)
	}
	return nil
}

// CancelByGatewaySubID cancels the entitlement tied to a provider-side
// subscription, the path taken when a subscription.cancelled webhook
// arrives.
func (s *service) CancelByGatewaySubID(ctx context.Context, gateway, subID string) error {
	ent, err := s.store.GetByGatewaySubID(ctx, gateway, subID)
	if err != nil {
		return err
	}
	return s.Cancel(ctx, ent.ID)
}

// RequestSwitch opens a plan switch: a sub-entitlement is created in
// pending_payment for the target plan and the parent is flagged. The
// switch completes through CompletePayment or ApproveSwitch on the
// sub-entitlement's payment.
func (s *service) RequestSwitch(ctx context.Context, id uuid.UUID, newPlanID string) (*Entitlement, error) {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if ent.Status != StatusActive {
		return nil, ErrNotActive
	}
	if ent.HasPendingSwitch() {
		return nil, ErrSwitchAlreadyPending
	}
	if newPlanID == ent.PlanID {
		return nil, ErrPlanUnchanged
	}

	target, err := s.catalog.Get(newPlanID)
	if err != nil {
		return nil, err
	}
	if target.FeatureKey != ent.FeatureKey {
		return nil, ErrFeatureMismatch
	}
	if !target.Active {
		return nil, ErrPlanInactive
	}

	now := s.now()
	parentID := ent.ID
	sub := &Entitlement{
		ID:           uuid.New(),
		OwnerID:      ent.OwnerID,
		FeatureKey:   ent.FeatureKey,
		PlanID:       target.ID,
		Status:       StatusPendingPayment,
		PurchaseDate: now,
		Gateway:      ent.Gateway,
		ParentID:     &parentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	ent.PendingSwitchPlanID = target.ID
	ent.UpdatedAt = now
	if err := s.store.Update(ctx, ent); err != nil {
		return nil, err
	}

	return sub, nil
}

// ApproveSwitch completes a pending switch out-of-band, the path for
// offline bank-transfer payments approved by an admin.
func (s *service) ApproveSwitch(ctx context.Context, parentID uuid.UUID) error {
	return s.approveSwitch(ctx, parentID, "")
}

func (s *service) approveSwitch(ctx context.Context, parentID uuid.UUID, txnRef string) error {
	parent, err := s.store.Get(ctx, parentID)
	if err != nil {
		return err
	}
	if !parent.HasPendingSwitch() {
		return ErrNoSwitchPending
	}

	sub, err := s.store.GetPendingSwitch(ctx, parentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNoSwitchPending
		}
		return err
	}

	p, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return err
	}

	// The buyer keeps their key across a plan switch: carry the parent's
	// keys onto the sub-entitlement so issuance no-ops.
	if p.RequiresAPIKey && sub.APIKey == "" {
		sub.APIKey = parent.APIKey
	}
	if p.RequiresLicenseKey && sub.LicenseKey == "" {
		sub.LicenseKey = parent.LicenseKey
	}

	if err := s.activate(ctx, sub, p, txnRef); err != nil {
		return err
	}

	// The old entitlement is superseded in the same operation that
	// activates its replacement.
	now := s.now()
	parent.PendingSwitchPlanID = ""
	if parent.Status.CanTransition(StatusCancelled) {
		parent.Status = StatusCancelled
	}
	parent.UpdatedAt = now
	return s.store.Update(ctx, parent)
}

// Cancel terminates an entitlement and clears any pending switch, also
// cancelling the switch's sub-entitlement. Cancelling an already
// cancelled entitlement is a success no-op; keys are kept for audit.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) error {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if ent.Status == StatusCancelled {
		return nil
	}
	if !ent.Status.CanTransition(StatusCancelled) {
		return &InvalidTransitionError{From: ent.Status, To: StatusCancelled}
	}

	now := s.now()

	if ent.HasPendingSwitch() {
		if sub, err := s.store.GetPendingSwitch(ctx, ent.ID); err == nil {
			sub.Status = StatusCancelled
			sub.UpdatedAt = now
			if err := s.store.Update(ctx, sub); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	ent.Status = StatusCancelled
	ent.PendingSwitchPlanID = ""
	ent.AutoRenew = false
	ent.UpdatedAt = now

	if err := s.store.Update(ctx, ent); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "entitlement cancelled", "entitlement_id", ent.ID)
	return nil
}

// ToggleAutoRenew flips auto-renewal on recurring plans; one-time plans
// reject it with ErrNotRenewable.
func (s *service) ToggleAutoRenew(ctx context.Context, id uuid.UUID, enabled bool) error {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	p, err := s.catalog.Get(ent.PlanID)
	if err != nil {
		return err
	}
	if !p.IsRecurring() {
		return ErrNotRenewable
	}

	ent.AutoRenew = enabled
	ent.UpdatedAt = s.now()
	return s.store.Update(ctx, ent)
}

// ExpireDue sweeps active entitlements whose expiry has passed into
// expired. The host schedules this; a failed row is logged and skipped so
// one bad record cannot stall the sweep.
func (s *service) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	var expired int
	for i := range due {
		ent := &due[i]
		if !ent.Status.CanTransition(StatusExpired) {
			continue
		}
		ent.Status = StatusExpired
		ent.UpdatedAt = s.now()
		if err := s.store.Update(ctx, ent); err != nil {
			s.log.ErrorContext(ctx, "failed to expire entitlement",
				"entitlement_id", ent.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// ForceStatus sets a status directly, bypassing the transition table.
// Admin back-office only.
func (s *service) ForceStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	ent.Status = status
	if status.Terminal() {
		ent.PendingSwitchPlanID = ""
	}
	ent.UpdatedAt = s.now()

	if err := s.store.Update(ctx, ent); err != nil {
		return err
	}

	s.log.WarnContext(ctx, "entitlement status forced",
		"entitlement_id", ent.ID, "status", status)
	return nil
}
