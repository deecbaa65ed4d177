package license

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/plan"
)

// Tracker enforces per-entitlement activation ceilings for license
// keys. Registering the same site twice is idempotent; deactivating a
// site frees its slot for another install.
type Tracker struct {
	store   ActivationStore
	ents    entitlement.Store
	catalog *plan.Catalog
	log     *slog.Logger
	now     func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(log *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithTrackerClock overrides the time source, used by tests.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker wires an activation tracker.
func NewTracker(store ActivationStore, ents entitlement.Store, catalog *plan.Catalog, opts ...TrackerOption) *Tracker {
	if store == nil {
		panic("license: activation store is required")
	}
	if ents == nil {
		panic("license: entitlement store is required")
	}
	if catalog == nil {
		panic("license: plan catalog is required")
	}

	t := &Tracker{
		store:   store,
		ents:    ents,
		catalog: catalog,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register activates a license key on a site. The key's entitlement
// must currently grant access; the site counts against the effective
// ceiling unless it is already active, in which case the existing
// activation is returned unchanged.
func (t *Tracker) Register(ctx context.Context, key, siteURL string) (*Activation, error) {
	site, err := NormalizeSite(siteURL)
	if err != nil {
		return nil, err
	}

	ent, err := t.ents.GetByLicenseKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ent.IsAccessible(t.now()) {
		return nil, ErrKeyInactive
	}

	limit := t.effectiveLimit(ent)

	var result *Activation
	err = t.store.WithKeyLock(ctx, key, func(ctx context.Context, s ActivationStore) error {
		existing, err := s.Find(ctx, key, site)
		if err != nil && !errors.Is(err, ErrActivationNotFound) {
			return err
		}
		if existing != nil && existing.Active {
			result = existing
			return nil
		}

		if limit > 0 {
			active, err := s.CountActive(ctx, key)
			if err != nil {
				return err
			}
			if active >= limit {
				return ErrActivationLimitReached
			}
		}

		now := t.now()
		if existing != nil {
			existing.Active = true
			existing.ActivatedAt = now
			existing.DeactivatedAt = nil
			if err := s.Update(ctx, existing); err != nil {
				return err
			}
			result = existing
			return nil
		}

		act := &Activation{
			ID:          uuid.New(),
			Key:         key,
			Site:        site,
			Active:      true,
			ActivatedAt: now,
		}
		if err := s.Create(ctx, act); err != nil {
			return err
		}
		result = act
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.log.InfoContext(ctx, "site activated", "entitlement_id", ent.ID, "site", site)
	return result, nil
}

// Deactivate releases a site's slot. It works regardless of the
// entitlement's status so an expired key can still clean up installs;
// possession of the key is the authorization.
func (t *Tracker) Deactivate(ctx context.Context, key, siteURL string) error {
	site, err := NormalizeSite(siteURL)
	if err != nil {
		return err
	}

	if _, err := t.ents.GetByLicenseKey(ctx, key); err != nil {
		return err
	}

	return t.store.WithKeyLock(ctx, key, func(ctx context.Context, s ActivationStore) error {
		act, err := s.Find(ctx, key, site)
		if err != nil {
			return err
		}
		if !act.Active {
			return ErrActivationNotFound
		}

		now := t.now()
		act.Active = false
		act.DeactivatedAt = &now
		return s.Update(ctx, act)
	})
}

// Validation is the answer a remote install gets when it checks its
// license.
type Validation struct {
	Valid      bool
	Status     entitlement.Status
	ExpiresAt  *time.Time
	SiteActive bool
}

// Validate reports whether a key grants access and whether the given
// site is among its activations. Unknown keys return
// entitlement.ErrNotFound.
func (t *Tracker) Validate(ctx context.Context, key, siteURL string) (*Validation, error) {
	site, err := NormalizeSite(siteURL)
	if err != nil {
		return nil, err
	}

	ent, err := t.ents.GetByLicenseKey(ctx, key)
	if err != nil {
		return nil, err
	}

	v := &Validation{
		Status:    ent.Status,
		ExpiresAt: ent.ExpiresAt,
	}

	act, err := t.store.Find(ctx, key, site)
	if err != nil && !errors.Is(err, ErrActivationNotFound) {
		return nil, err
	}
	v.SiteActive = act != nil && act.Active
	v.Valid = ent.IsAccessible(t.now()) && v.SiteActive
	return v, nil
}

// List returns every activation recorded for a key, active or not.
func (t *Tracker) List(ctx context.Context, key string) ([]Activation, error) {
	if _, err := t.ents.GetByLicenseKey(ctx, key); err != nil {
		return nil, err
	}
	return t.store.List(ctx, key)
}

// effectiveLimit resolves the ceiling for one entitlement: a positive
// per-record override beats the plan's limit, anything else defers to
// the plan, and a plan without a limit is unlimited (zero).
func (t *Tracker) effectiveLimit(ent *entitlement.Entitlement) int {
	if ent.OverrideActivationLimit != nil && *ent.OverrideActivationLimit > 0 {
		return *ent.OverrideActivationLimit
	}

	p, err := t.catalog.Get(ent.PlanID)
	if err != nil || p.ActivationLimit == nil {
		return 0
	}
	return *p.ActivationLimit
}

// NormalizeSite canonicalizes a site identifier to lowercase host plus
// path with no scheme or trailing slash, so http/https and trailing
// slash variants of the same install occupy one slot.
func NormalizeSite(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidSiteURL
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", ErrInvalidSiteURL
	}

	site := strings.ToLower(u.Hostname()) + strings.TrimSuffix(u.Path, "/")
	return site, nil
}
