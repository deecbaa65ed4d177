package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/clientip"
	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/payment"
	"github.com/orunkhq/orunk/pkg/quota"
)

type purchaseView struct {
	ID                  string     `json:"id"`
	PlanID              string     `json:"plan_id"`
	FeatureKey          string     `json:"feature_key"`
	Status              string     `json:"status"`
	PurchaseDate        time.Time  `json:"purchase_date"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	AutoRenew           bool       `json:"auto_renew"`
	PendingSwitchPlanID string     `json:"pending_switch_plan_id,omitempty"`
	APIKey              string     `json:"api_key,omitempty"`
	LicenseKey          string     `json:"license_key,omitempty"`
	Gateway             string     `json:"gateway,omitempty"`
}

func viewOf(ent *entitlement.Entitlement) purchaseView {
	return purchaseView{
		ID:                  ent.ID.String(),
		PlanID:              ent.PlanID,
		FeatureKey:          ent.FeatureKey,
		Status:              string(ent.Status),
		PurchaseDate:        ent.PurchaseDate,
		ExpiresAt:           ent.ExpiresAt,
		AutoRenew:           ent.AutoRenew,
		PendingSwitchPlanID: ent.PendingSwitchPlanID,
		APIKey:              ent.APIKey,
		LicenseKey:          ent.LicenseKey,
		Gateway:             ent.Gateway,
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", errBadRequest)
	}
	return nil
}

func requireActor(r *http.Request) (Actor, error) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		return Actor{}, errUnauthenticated
	}
	return actor, nil
}

func (m *Module) requireAdmin(r *http.Request) error {
	actor, err := requireActor(r)
	if err != nil {
		return err
	}
	if !actor.Admin {
		return errForbidden
	}
	return nil
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", errBadRequest)
	}
	return id, nil
}

// loadAuthorized fetches the entitlement and checks the actor owns it
// or is an admin.
func (m *Module) loadAuthorized(r *http.Request) (*entitlement.Entitlement, error) {
	actor, err := requireActor(r)
	if err != nil {
		return nil, err
	}
	id, err := idParam(r)
	if err != nil {
		return nil, err
	}

	ent, err := m.deps.Entitlements.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && ent.OwnerID != actor.ID {
		// Indistinguishable from a record that does not exist.
		return nil, entitlement.ErrNotFound
	}
	return ent, nil
}

func (m *Module) listPlans(w http.ResponseWriter, r *http.Request) {
	feature := r.URL.Query().Get("feature")
	if feature == "" {
		respondError(w, fmt.Errorf("%w: feature query parameter is required", errBadRequest))
		return
	}
	respond(w, http.StatusOK, m.deps.Catalog.ByFeature(feature))
}

func (m *Module) checkout(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		PlanID     string `json:"plan_id"`
		Gateway    string `json:"gateway"`
		Email      string `json:"email"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	gw, err := m.deps.Gateways.Get(req.Gateway)
	if err != nil {
		respondError(w, err)
		return
	}
	p, err := m.deps.Catalog.Get(req.PlanID)
	if err != nil {
		respondError(w, err)
		return
	}

	ent, err := m.deps.Entitlements.Purchase(r.Context(), actor.ID, req.PlanID, gw.ID())
	if err != nil {
		respondError(w, err)
		return
	}

	checkout, err := gw.CreateCheckout(r.Context(), payment.CheckoutRequest{
		EntitlementID: ent.ID,
		Plan:          p,
		Email:         req.Email,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		if errors.Is(err, payment.ErrPlanNotPurchasable) {
			respondError(w, err)
			return
		}
		m.log.ErrorContext(r.Context(), "checkout creation failed",
			"gateway", gw.ID(), "entitlement_id", ent.ID, "error", err)
		respondErrorCode(w, http.StatusBadGateway, "gateway_error", "checkout could not be started")
		return
	}

	respond(w, http.StatusCreated, map[string]any{
		"purchase": viewOf(ent),
		"checkout": map[string]any{
			"url":          checkout.URL,
			"session_id":   checkout.SessionID,
			"pending":      checkout.Pending,
			"instructions": checkout.Instructions,
		},
	})
}

func (m *Module) webhook(w http.ResponseWriter, r *http.Request) {
	gw, err := m.deps.Gateways.Get(chi.URLParam(r, "gateway"))
	if err != nil {
		respondError(w, err)
		return
	}

	event, err := gw.ParseWebhook(r)
	if err != nil {
		m.log.WarnContext(r.Context(), "webhook rejected", "gateway", gw.ID(), "error", err)
		respondError(w, err)
		return
	}

	if err := m.applyEvent(r, gw.ID(), event); err != nil {
		// Unprocessed events come back with 5xx so the provider retries.
		m.log.ErrorContext(r.Context(), "webhook processing failed",
			"gateway", gw.ID(), "event", event.ProviderEvent, "error", err)
		respondErrorCode(w, http.StatusInternalServerError, "internal_error", "event not processed")
		return
	}

	respond(w, http.StatusOK, map[string]any{"received": event.ProviderEvent})
}

func (m *Module) applyEvent(r *http.Request, gatewayID string, event *payment.Event) error {
	ctx := r.Context()

	switch event.Type {
	case payment.EventPaymentSucceeded:
		id := event.EntitlementID
		if id == uuid.Nil {
			return nil // no way to attribute; acknowledged and dropped
		}
		return m.deps.Entitlements.CompletePayment(ctx, id, event.TxnRef, event.SubscriptionID)

	case payment.EventPaymentFailed:
		id := event.EntitlementID
		if id == uuid.Nil {
			return nil
		}
		reason := event.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		err := m.deps.Entitlements.RecordFailure(ctx, id, reason, event.TxnRef)
		if errors.Is(err, entitlement.ErrNotFound) {
			return nil
		}
		return err

	case payment.EventSubscriptionCancelled:
		err := m.deps.Entitlements.CancelByGatewaySubID(ctx, gatewayID, event.SubscriptionID)
		if errors.Is(err, entitlement.ErrNotFound) {
			return nil
		}
		return err

	default:
		return nil
	}
}

func (m *Module) listPurchases(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ents, err := m.deps.Entitlements.ListByOwner(r.Context(), actor.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	views := make([]purchaseView, 0, len(ents))
	for i := range ents {
		views = append(views, viewOf(&ents[i]))
	}
	respond(w, http.StatusOK, views)
}

func (m *Module) getPurchase(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, viewOf(ent))
}

func (m *Module) cancelPurchase(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := m.deps.Entitlements.Cancel(r.Context(), ent.ID); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (m *Module) toggleAutoRenew(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := m.deps.Entitlements.ToggleAutoRenew(r.Context(), ent.ID, req.Enabled); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"auto_renew": req.Enabled})
}

func (m *Module) requestSwitch(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sub, err := m.deps.Entitlements.RequestSwitch(r.Context(), ent.ID, req.PlanID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, viewOf(sub))
}

func (m *Module) approveSwitch(w http.ResponseWriter, r *http.Request) {
	if err := m.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := m.deps.Entitlements.ApproveSwitch(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"approved": true})
}

// adminActivate approves a pending purchase out-of-band, the path bank
// transfers take once the money shows up.
func (m *Module) adminActivate(w http.ResponseWriter, r *http.Request) {
	if err := m.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		TxnRef string `json:"txn_ref"`
		Force  bool   `json:"force"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.TxnRef == "" {
		req.TxnRef = "manual_admin_activation"
	}

	if err := m.deps.Entitlements.Activate(r.Context(), id, req.TxnRef, req.Force); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"activated": true})
}

// forceStatus is the back-office escape hatch: it bypasses the
// transition table entirely.
func (m *Module) forceStatus(w http.ResponseWriter, r *http.Request) {
	if err := m.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	status := entitlement.Status(req.Status)
	if !status.Valid() {
		respondError(w, fmt.Errorf("%w: unknown status %q", errBadRequest, req.Status))
		return
	}

	if err := m.deps.Entitlements.ForceStatus(r.Context(), id, status); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"status": req.Status})
}

func (m *Module) regenerateKey(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := m.deps.Issuer.Regenerate(r.Context(), ent.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	if m.deps.Notifier != nil {
		m.deps.Notifier.KeyRegenerated(r.Context(), updated)
	}
	respond(w, http.StatusOK, viewOf(updated))
}

type usageView struct {
	Count     int64 `json:"count"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Exceeded  bool  `json:"exceeded"`
}

func (m *Module) usage(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}

	p, err := m.deps.Catalog.Get(ent.PlanID)
	if err != nil {
		respondError(w, err)
		return
	}

	subject := ent.Key()
	data := map[string]any{}

	if p.RequestsPerDay != nil && subject != "" {
		u, err := m.deps.Counter.Current(r.Context(), subject, quota.ScopeDay, *p.RequestsPerDay)
		if err != nil {
			respondError(w, err)
			return
		}
		data["day"] = usageView{Count: u.Count, Limit: u.Limit, Remaining: u.Remaining(), Exceeded: u.Exceeded}
	}
	if p.RequestsPerMonth != nil && subject != "" {
		u, err := m.deps.Counter.Current(r.Context(), subject, quota.ScopeMonth, *p.RequestsPerMonth)
		if err != nil {
			respondError(w, err)
			return
		}
		data["month"] = usageView{Count: u.Count, Limit: u.Limit, Remaining: u.Remaining(), Exceeded: u.Exceeded}
	}

	respond(w, http.StatusOK, data)
}

func (m *Module) downloadLink(w http.ResponseWriter, r *http.Request) {
	ent, err := m.loadAuthorized(r)
	if err != nil {
		respondError(w, err)
		return
	}

	link, err := m.deps.Downloads.LinkFor(r.Context(), ent.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"url":        link.URL,
		"expires_at": link.ExpiresAt,
	})
}

type licenseRequest struct {
	LicenseKey string `json:"license_key"`
	SiteURL    string `json:"site_url"`
}

func (m *Module) licenseActivate(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	act, err := m.deps.Tracker.Register(r.Context(), req.LicenseKey, req.SiteURL)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"site":         act.Site,
		"active":       act.Active,
		"activated_at": act.ActivatedAt,
	})
}

func (m *Module) licenseDeactivate(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := m.deps.Tracker.Deactivate(r.Context(), req.LicenseKey, req.SiteURL); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (m *Module) licenseValidate(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	v, err := m.deps.Tracker.Validate(r.Context(), req.LicenseKey, req.SiteURL)
	if err != nil {
		// An unknown key and an invalid key answer identically, so the
		// endpoint cannot be used to probe which keys exist.
		if errors.Is(err, entitlement.ErrNotFound) {
			respond(w, http.StatusOK, map[string]any{"valid": false})
			return
		}
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"valid":       v.Valid,
		"status":      string(v.Status),
		"expires_at":  v.ExpiresAt,
		"site_active": v.SiteActive,
	})
}

func (m *Module) binLookup(w http.ResponseWriter, r *http.Request) {
	bin := chi.URLParam(r, "bin")

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if !m.admitKeyedLookup(w, r, apiKey) {
			return
		}
	} else if !m.admitAnonymousLookup(w, r) {
		return
	}

	res, err := m.deps.BinClient.Lookup(r.Context(), bin)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// admitKeyedLookup enforces the key's plan quotas. The hit is recorded
// before the limit check so over-limit attempts still show in usage.
func (m *Module) admitKeyedLookup(w http.ResponseWriter, r *http.Request, apiKey string) bool {
	ent, err := m.deps.Entitlements.GetByAPIKey(r.Context(), apiKey)
	if err != nil || !ent.IsAccessible(time.Now().UTC()) {
		respondErrorCode(w, http.StatusForbidden, "unauthorized", "API key is not active")
		return false
	}

	if m.deps.Counter == nil {
		return true
	}
	p, err := m.deps.Catalog.Get(ent.PlanID)
	if err != nil {
		respondError(w, err)
		return false
	}

	scopes := []struct {
		scope quota.Scope
		limit *int64
	}{
		{quota.ScopeDay, p.RequestsPerDay},
		{quota.ScopeMonth, p.RequestsPerMonth},
	}
	for _, s := range scopes {
		if s.limit == nil {
			continue
		}
		u, err := m.deps.Counter.IncrementAndCheck(r.Context(), apiKey, s.scope, *s.limit)
		if err != nil {
			respondError(w, err)
			return false
		}
		if u.Exceeded {
			respondErrorCode(w, http.StatusTooManyRequests, "limit_reached",
				fmt.Sprintf("%s quota exceeded", s.scope))
			return false
		}
	}
	return true
}

// admitAnonymousLookup applies the per-IP throttle; throttled callers
// must present captcha proof the host can verify.
func (m *Module) admitAnonymousLookup(w http.ResponseWriter, r *http.Request) bool {
	if m.deps.BinThrottle == nil {
		return true
	}

	captcha, err := m.deps.BinThrottle.Hit(r.Context(), clientip.FromRequest(r))
	if err != nil {
		respondError(w, err)
		return false
	}
	if !captcha {
		return true
	}
	if m.deps.CaptchaVerify != nil && m.deps.CaptchaVerify(r) {
		return true
	}

	respondErrorCode(w, http.StatusTooManyRequests, "captcha_required",
		"too many lookups from this address, captcha required")
	return false
}
