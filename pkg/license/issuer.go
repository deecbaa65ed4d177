package license

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/plan"
)

// defaultMaxAttempts bounds the generate-and-check loop. With 160-bit
// keys a single collision is already extraordinary; repeated collisions
// mean something is wrong with the randomness source and we must stop.
const defaultMaxAttempts = 5

// Issuer generates keys for entitlements whose plan requires them. It
// implements entitlement.KeyIssuer.
type Issuer struct {
	store       entitlement.Store
	catalog     *plan.Catalog
	log         *slog.Logger
	maxAttempts int
	newKey      func(prefix string) (string, error)
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerLogger sets the logger.
func WithIssuerLogger(log *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		if log != nil {
			i.log = log
		}
	}
}

// WithMaxAttempts overrides the uniqueness retry budget.
func WithMaxAttempts(n int) IssuerOption {
	return func(i *Issuer) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// withKeyFunc replaces the generator, used by tests to force collisions.
func withKeyFunc(fn func(prefix string) (string, error)) IssuerOption {
	return func(i *Issuer) { i.newKey = fn }
}

// NewIssuer wires a key issuer over the entitlement store, which it
// uses for uniqueness checks across both key columns.
func NewIssuer(store entitlement.Store, catalog *plan.Catalog, opts ...IssuerOption) *Issuer {
	if store == nil {
		panic("license: entitlement store is required")
	}
	if catalog == nil {
		panic("license: plan catalog is required")
	}

	i := &Issuer{
		store:       store,
		catalog:     catalog,
		log:         slog.Default(),
		maxAttempts: defaultMaxAttempts,
		newKey:      NewKey,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IssueIfRequired puts the keys the plan calls for onto ent, skipping
// any kind already present. Persistence stays with the caller.
func (i *Issuer) IssueIfRequired(ctx context.Context, ent *entitlement.Entitlement, p plan.Plan) (bool, error) {
	var issued bool

	if p.RequiresAPIKey && ent.APIKey == "" {
		key, err := i.uniqueKey(ctx, PrefixAPIKey)
		if err != nil {
			return issued, err
		}
		ent.APIKey = key
		issued = true
	}

	if p.RequiresLicenseKey && ent.LicenseKey == "" {
		key, err := i.uniqueKey(ctx, PrefixLicenseKey)
		if err != nil {
			return issued, err
		}
		ent.LicenseKey = key
		issued = true
	}

	if issued {
		i.log.InfoContext(ctx, "keys issued", "entitlement_id", ent.ID)
	}
	return issued, nil
}

// Regenerate replaces the issued keys of an entitlement with fresh
// ones. The old keys stop working immediately; callers own telling the
// buyer.
func (i *Issuer) Regenerate(ctx context.Context, id uuid.UUID) (*entitlement.Entitlement, error) {
	ent, err := i.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := i.catalog.Get(ent.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.RequiresKey() {
		return nil, ErrKeyNotSupported
	}

	if p.RequiresAPIKey {
		key, err := i.uniqueKey(ctx, PrefixAPIKey)
		if err != nil {
			return nil, err
		}
		ent.APIKey = key
	}
	if p.RequiresLicenseKey {
		key, err := i.uniqueKey(ctx, PrefixLicenseKey)
		if err != nil {
			return nil, err
		}
		ent.LicenseKey = key
	}

	if err := i.store.Update(ctx, ent); err != nil {
		return nil, err
	}

	i.log.InfoContext(ctx, "keys regenerated", "entitlement_id", ent.ID)
	return ent, nil
}

func (i *Issuer) uniqueKey(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		key, err := i.newKey(prefix)
		if err != nil {
			return "", err
		}

		exists, err := i.store.KeyExists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("license: check key uniqueness: %w", err)
		}
		if !exists {
			return key, nil
		}

		i.log.WarnContext(ctx, "key collision, retrying", "attempt", attempt+1)
	}
	return "", ErrKeyspaceExhausted
}
