package license

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/plan"
)

func issuerCatalog(t *testing.T) *plan.Catalog {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.StaticSource{
		"api_monthly": {
			ID:             "api_monthly",
			FeatureKey:     "bin_lookup_api",
			Kind:           plan.BillingRecurring,
			DurationDays:   30,
			Price:          plan.Money{Amount: 999, Currency: "USD"},
			RequiresAPIKey: true,
			Active:         true,
		},
		"plugin_lifetime": {
			ID:                 "plugin_lifetime",
			FeatureKey:         "wp_plugin",
			Kind:               plan.BillingOneTime,
			DurationDays:       plan.LifetimeSentinelDays,
			Price:              plan.Money{Amount: 4900, Currency: "USD"},
			RequiresLicenseKey: true,
			Active:             true,
		},
		"bundle": {
			ID:                 "bundle",
			FeatureKey:         "bundle",
			Kind:               plan.BillingOneTime,
			DurationDays:       365,
			Price:              plan.Money{Amount: 9900, Currency: "USD"},
			RequiresAPIKey:     true,
			RequiresLicenseKey: true,
			Active:             true,
		},
		"keyless": {
			ID:           "keyless",
			FeatureKey:   "ad_removal",
			Kind:         plan.BillingOneTime,
			DurationDays: 365,
			Price:        plan.Money{Amount: 500, Currency: "USD"},
			Active:       true,
		},
	})
	require.NoError(t, err)
	return catalog
}

func storedEntitlement(t *testing.T, store entitlement.Store, planID string) *entitlement.Entitlement {
	t.Helper()

	ent := &entitlement.Entitlement{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		FeatureKey:   "any",
		PlanID:       planID,
		Status:       entitlement.StatusActive,
		PurchaseDate: time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), ent))
	return ent
}

func TestIssuerIssueIfRequired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("issues the kinds the plan requires", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		issuer := NewIssuer(store, issuerCatalog(t))
		catalog := issuerCatalog(t)

		ent := storedEntitlement(t, store, "bundle")
		p, err := catalog.Get("bundle")
		require.NoError(t, err)

		issued, err := issuer.IssueIfRequired(ctx, ent, p)
		require.NoError(t, err)
		assert.True(t, issued)
		assert.True(t, strings.HasPrefix(ent.APIKey, PrefixAPIKey))
		assert.True(t, strings.HasPrefix(ent.LicenseKey, PrefixLicenseKey))
	})

	t.Run("no-op when keys already present", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		catalog := issuerCatalog(t)
		issuer := NewIssuer(store, catalog)

		ent := storedEntitlement(t, store, "api_monthly")
		ent.APIKey = "oak_existing"
		p, err := catalog.Get("api_monthly")
		require.NoError(t, err)

		issued, err := issuer.IssueIfRequired(ctx, ent, p)
		require.NoError(t, err)
		assert.False(t, issued)
		assert.Equal(t, "oak_existing", ent.APIKey)
	})

	t.Run("no-op for keyless plans", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		catalog := issuerCatalog(t)
		issuer := NewIssuer(store, catalog)

		ent := storedEntitlement(t, store, "keyless")
		p, err := catalog.Get("keyless")
		require.NoError(t, err)

		issued, err := issuer.IssueIfRequired(ctx, ent, p)
		require.NoError(t, err)
		assert.False(t, issued)
		assert.Empty(t, ent.APIKey)
		assert.Empty(t, ent.LicenseKey)
	})

	t.Run("retries past a collision", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		catalog := issuerCatalog(t)

		taken := storedEntitlement(t, store, "plugin_lifetime")
		taken.LicenseKey = "olk_taken"
		require.NoError(t, store.Update(ctx, taken))

		keys := []string{"olk_taken", "olk_fresh"}
		issuer := NewIssuer(store, catalog, withKeyFunc(func(prefix string) (string, error) {
			key := keys[0]
			keys = keys[1:]
			return key, nil
		}))

		ent := storedEntitlement(t, store, "plugin_lifetime")
		p, err := catalog.Get("plugin_lifetime")
		require.NoError(t, err)

		issued, err := issuer.IssueIfRequired(ctx, ent, p)
		require.NoError(t, err)
		assert.True(t, issued)
		assert.Equal(t, "olk_fresh", ent.LicenseKey)
	})

	t.Run("fails closed when collisions persist", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		catalog := issuerCatalog(t)

		taken := storedEntitlement(t, store, "plugin_lifetime")
		taken.LicenseKey = "olk_taken"
		require.NoError(t, store.Update(ctx, taken))

		issuer := NewIssuer(store, catalog,
			WithMaxAttempts(3),
			withKeyFunc(func(prefix string) (string, error) { return "olk_taken", nil }),
		)

		ent := storedEntitlement(t, store, "plugin_lifetime")
		p, err := catalog.Get("plugin_lifetime")
		require.NoError(t, err)

		issued, err := issuer.IssueIfRequired(ctx, ent, p)
		assert.ErrorIs(t, err, ErrKeyspaceExhausted)
		assert.False(t, issued)
		assert.Empty(t, ent.LicenseKey)
	})
}

func TestIssuerRegenerate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("replaces and persists keys", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		issuer := NewIssuer(store, issuerCatalog(t))

		ent := storedEntitlement(t, store, "api_monthly")
		ent.APIKey = "oak_old"
		require.NoError(t, store.Update(ctx, ent))

		got, err := issuer.Regenerate(ctx, ent.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "oak_old", got.APIKey)
		assert.True(t, strings.HasPrefix(got.APIKey, PrefixAPIKey))

		stored, err := store.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, got.APIKey, stored.APIKey)
	})

	t.Run("rejects keyless plans", func(t *testing.T) {
		t.Parallel()

		store := entitlement.NewMemoryStore()
		issuer := NewIssuer(store, issuerCatalog(t))

		ent := storedEntitlement(t, store, "keyless")
		_, err := issuer.Regenerate(ctx, ent.ID)
		assert.ErrorIs(t, err, ErrKeyNotSupported)
	})

	t.Run("unknown entitlement", func(t *testing.T) {
		t.Parallel()

		issuer := NewIssuer(entitlement.NewMemoryStore(), issuerCatalog(t))
		_, err := issuer.Regenerate(ctx, uuid.New())
		assert.ErrorIs(t, err, entitlement.ErrNotFound)
	})
}
