package entitlement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/plan"
)

// stubIssuer issues deterministic keys and counts invocations so tests
// can assert keys are issued exactly once.
type stubIssuer struct {
	calls  int
	issued int
}

func (s *stubIssuer) IssueIfRequired(_ context.Context, ent *entitlement.Entitlement, p plan.Plan) (bool, error) {
	s.calls++
	if !p.RequiresKey() {
		return false, nil
	}
	if p.RequiresAPIKey && ent.APIKey == "" {
		s.issued++
		ent.APIKey = fmt.Sprintf("oak_test_%016d", s.issued)
		return true, nil
	}
	if p.RequiresLicenseKey && ent.LicenseKey == "" {
		s.issued++
		ent.LicenseKey = fmt.Sprintf("olk_test_%016d", s.issued)
		return true, nil
	}
	return false, nil
}

type recordingNotifier struct {
	activated []uuid.UUID
	failed    []uuid.UUID
}

func (n *recordingNotifier) EntitlementActivated(_ context.Context, ent *entitlement.Entitlement) {
	n.activated = append(n.activated, ent.ID)
}

func (n *recordingNotifier) EntitlementFailed(_ context.Context, ent *entitlement.Entitlement) {
	n.failed = append(n.failed, ent.ID)
}

func testCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	daily := int64(1000)
	c, err := plan.NewCatalog(context.Background(), plan.StaticSource{
		"api_monthly": {
			ID: "api_monthly", FeatureKey: "bin_lookup_api", Name: "API Monthly",
			Kind: plan.BillingRecurring, DurationDays: 30,
			Price:          plan.Money{Amount: 999, Currency: "USD"},
			RequestsPerDay: &daily, RequiresAPIKey: true, Active: true,
		},
		"api_yearly": {
			ID: "api_yearly", FeatureKey: "bin_lookup_api", Name: "API Yearly",
			Kind: plan.BillingRecurring, DurationDays: 365,
			Price: plan.Money{Amount: 9900, Currency: "USD"}, RequiresAPIKey: true, Active: true,
		},
		"plugin_lifetime": {
			ID: "plugin_lifetime", FeatureKey: "orunk_plugin", Name: "Plugin Lifetime",
			Kind: plan.BillingOneTime, DurationDays: 9999,
			Price: plan.Money{Amount: 4900, Currency: "USD"}, RequiresLicenseKey: true, Active: true,
		},
		"retired_plan": {
			ID: "retired_plan", FeatureKey: "bin_lookup_api", Name: "Retired",
			Kind: plan.BillingRecurring, DurationDays: 30,
		},
	})
	require.NoError(t, err)
	return c
}

type fixture struct {
	store    *entitlement.MemoryStore
	issuer   *stubIssuer
	notifier *recordingNotifier
	svc      entitlement.Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    entitlement.NewMemoryStore(),
		issuer:   &stubIssuer{},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = entitlement.NewService(f.store, testCatalog(t), f.issuer,
		entitlement.WithNotifier(f.notifier),
		entitlement.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) purchase(t *testing.T, planID, gateway string) *entitlement.Entitlement {
	t.Helper()
	ent, err := f.svc.Purchase(context.Background(), uuid.New(), planID, gateway)
	require.NoError(t, err)
	return ent
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("creates pending entitlement", func(t *testing.T) {
		ent := f.purchase(t, "api_monthly", "stripe")
		assert.Equal(t, entitlement.StatusPendingPayment, ent.Status)
		assert.Equal(t, "bin_lookup_api", ent.FeatureKey)
		assert.Equal(t, "stripe", ent.Gateway)
		assert.Nil(t, ent.ExpiresAt)
		assert.Empty(t, ent.APIKey)
	})

	t.Run("unknown plan", func(t *testing.T) {
		_, err := f.svc.Purchase(ctx, uuid.New(), "missing", "stripe")
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("inactive plan", func(t *testing.T) {
		_, err := f.svc.Purchase(ctx, uuid.New(), "retired_plan", "stripe")
		assert.ErrorIs(t, err, entitlement.ErrPlanInactive)
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("bank transfer purchase activates with expiry and key", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "bank")

		require.NoError(t, f.svc.Activate(ctx, ent.ID, "manual_admin_activation", false))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusActive, got.Status)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, ent.PurchaseDate.AddDate(0, 0, 30), *got.ExpiresAt)
		assert.Equal(t, "manual_admin_activation", got.GatewayTxnID)
		assert.True(t, got.AutoRenew)
		assert.Greater(t, len(got.APIKey), 10)
		assert.Equal(t, []uuid.UUID{ent.ID}, f.notifier.activated)
	})

	t.Run("lifetime plan activates without expiry", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "plugin_lifetime", "bank")

		require.NoError(t, f.svc.Activate(ctx, ent.ID, "manual_admin_activation", false))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
		assert.False(t, got.AutoRenew)
		assert.Greater(t, len(got.LicenseKey), 10)
		assert.True(t, got.IsAccessible(f.now.AddDate(50, 0, 0)))
	})

	t.Run("idempotent on double activation", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")

		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		first, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)

		// Duplicate webhook delivery.
		assert.ErrorIs(t, f.svc.Activate(ctx, ent.ID, "txn_2", false), entitlement.ErrAlreadyActive)
		assert.ErrorIs(t, f.svc.Activate(ctx, ent.ID, "txn_3", false), entitlement.ErrAlreadyActive)

		second, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
		assert.Equal(t, first.APIKey, second.APIKey)
		assert.Equal(t, "txn_1", second.GatewayTxnID)
		assert.Equal(t, 1, f.issuer.issued)
		assert.Len(t, f.notifier.activated, 1)
	})

	t.Run("rejects terminal statuses without force", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "card_declined", ""))

		assert.ErrorIs(t, f.svc.Activate(ctx, ent.ID, "txn", false), entitlement.ErrNotPending)
	})

	t.Run("force reactivates a failed entitlement", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "card_declined", ""))

		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_retry", true))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusActive, got.Status)
	})

	t.Run("unknown entitlement", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.Activate(ctx, uuid.New(), "txn", false), entitlement.ErrNotFound)
	})
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("records reason and timestamp", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "paypal")

		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "insufficient_funds", "txn_9"))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusFailed, got.Status)
		assert.Equal(t, "insufficient_funds", got.FailureReason)
		require.NotNil(t, got.FailedAt)
		assert.Equal(t, f.now, *got.FailedAt)
		assert.Equal(t, []uuid.UUID{ent.ID}, f.notifier.failed)
	})

	t.Run("failed renewal keeps issued key", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "renewal_declined", ""))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusFailed, got.Status)
		assert.NotEmpty(t, got.APIKey)
		assert.False(t, got.IsAccessible(f.now))
	})

	t.Run("idempotent on duplicate failure", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")

		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "first", ""))
		require.NoError(t, f.svc.RecordFailure(ctx, ent.ID, "second", ""))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.FailureReason)
	})

	t.Run("rejects illegal edge", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Cancel(ctx, ent.ID))

		var invalid *entitlement.InvalidTransitionError
		assert.ErrorAs(t, f.svc.RecordFailure(ctx, ent.ID, "late", ""), &invalid)
	})
}

func TestRequestSwitch(t *testing.T) {
	ctx := context.Background()

	activeEnt := func(t *testing.T, f *fixture) *entitlement.Entitlement {
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		return got
	}

	t.Run("creates sub-entitlement and flags parent", func(t *testing.T) {
		f := newFixture(t)
		ent := activeEnt(t, f)

		sub, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusPendingPayment, sub.Status)
		assert.Equal(t, "api_yearly", sub.PlanID)
		assert.Equal(t, ent.FeatureKey, sub.FeatureKey)
		require.NotNil(t, sub.ParentID)
		assert.Equal(t, ent.ID, *sub.ParentID)

		parent, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, "api_yearly", parent.PendingSwitchPlanID)
		assert.Equal(t, entitlement.StatusActive, parent.Status)
	})

	t.Run("mutual exclusion", func(t *testing.T) {
		f := newFixture(t)
		ent := activeEnt(t, f)

		_, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)

		_, err = f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		assert.ErrorIs(t, err, entitlement.ErrSwitchAlreadyPending)

		// No second sub-entitlement was created.
		subs, err := f.store.ListByOwner(ctx, ent.OwnerID)
		require.NoError(t, err)
		var pending int
		for _, e := range subs {
			if e.IsSwitchPurchase() {
				pending++
			}
		}
		assert.Equal(t, 1, pending)
	})

	t.Run("validation errors", func(t *testing.T) {
		f := newFixture(t)
		ent := activeEnt(t, f)

		_, err := f.svc.RequestSwitch(ctx, ent.ID, "plugin_lifetime")
		assert.ErrorIs(t, err, entitlement.ErrFeatureMismatch)

		_, err = f.svc.RequestSwitch(ctx, ent.ID, "api_monthly")
		assert.ErrorIs(t, err, entitlement.ErrPlanUnchanged)

		_, err = f.svc.RequestSwitch(ctx, ent.ID, "retired_plan")
		assert.ErrorIs(t, err, entitlement.ErrPlanInactive)

		pending := f.purchase(t, "api_monthly", "stripe")
		_, err = f.svc.RequestSwitch(ctx, pending.ID, "api_yearly")
		assert.ErrorIs(t, err, entitlement.ErrNotActive)
	})
}

func TestApproveSwitch(t *testing.T) {
	ctx := context.Background()

	t.Run("activates sub and supersedes parent", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "bank")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

		sub, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)

		require.NoError(t, f.svc.ApproveSwitch(ctx, ent.ID))

		gotSub, err := f.svc.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusActive, gotSub.Status)

		parent, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Empty(t, parent.PendingSwitchPlanID)
		assert.Equal(t, entitlement.StatusCancelled, parent.Status)
	})

	t.Run("buyer keeps key across switch", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		activated, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)

		sub, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)
		require.NoError(t, f.svc.ApproveSwitch(ctx, ent.ID))

		gotSub, err := f.svc.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, activated.APIKey, gotSub.APIKey)
		assert.Equal(t, 1, f.issuer.issued)
	})

	t.Run("errors without pending switch", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

		assert.ErrorIs(t, f.svc.ApproveSwitch(ctx, ent.ID), entitlement.ErrNoSwitchPending)
	})
}

func TestCompletePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("direct purchase", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")

		require.NoError(t, f.svc.CompletePayment(ctx, ent.ID, "txn_1", "sub_1"))
		// Duplicate delivery resolves to success.
		require.NoError(t, f.svc.CompletePayment(ctx, ent.ID, "txn_1", "sub_1"))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusActive, got.Status)
		assert.Equal(t, "sub_1", got.GatewaySubID)
	})

	t.Run("records the provider subscription for later cancellation", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")

		require.NoError(t, f.svc.CompletePayment(ctx, ent.ID, "txn_1", "sub_42"))
		require.NoError(t, f.svc.CancelByGatewaySubID(ctx, "stripe", "sub_42"))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusCancelled, got.Status)
	})

	t.Run("keeps the first recorded subscription id", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")

		require.NoError(t, f.svc.CompletePayment(ctx, ent.ID, "txn_1", "sub_first"))
		require.NoError(t, f.svc.CompletePayment(ctx, ent.ID, "txn_1", "sub_other"))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub_first", got.GatewaySubID)
	})

	t.Run("switch sub-entitlement routes to switch completion", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		sub, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)

		require.NoError(t, f.svc.CompletePayment(ctx, sub.ID, "txn_2", ""))

		gotSub, err := f.svc.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusActive, gotSub.Status)
		assert.Equal(t, "txn_2", gotSub.GatewayTxnID)

		parent, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusCancelled, parent.Status)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("clears pending switch in same operation", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		sub, err := f.svc.RequestSwitch(ctx, ent.ID, "api_yearly")
		require.NoError(t, err)

		require.NoError(t, f.svc.Cancel(ctx, ent.ID))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusCancelled, got.Status)
		assert.Empty(t, got.PendingSwitchPlanID)
		assert.False(t, got.AutoRenew)

		gotSub, err := f.svc.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusCancelled, gotSub.Status)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Cancel(ctx, ent.ID))
		require.NoError(t, f.svc.Cancel(ctx, ent.ID))
	})

	t.Run("keeps keys for audit", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

		require.NoError(t, f.svc.Cancel(ctx, ent.ID))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, got.APIKey)
	})

	t.Run("rejects cancelling expired", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))
		f.now = f.now.AddDate(0, 0, 31)
		_, err := f.svc.ExpireDue(ctx)
		require.NoError(t, err)

		var invalid *entitlement.InvalidTransitionError
		assert.ErrorAs(t, f.svc.Cancel(ctx, ent.ID), &invalid)
	})
}

func TestToggleAutoRenew(t *testing.T) {
	ctx := context.Background()

	t.Run("recurring plan", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "api_monthly", "stripe")
		require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

		require.NoError(t, f.svc.ToggleAutoRenew(ctx, ent.ID, false))

		got, err := f.svc.Get(ctx, ent.ID)
		require.NoError(t, err)
		assert.False(t, got.AutoRenew)
	})

	t.Run("one-time plan is not renewable", func(t *testing.T) {
		f := newFixture(t)
		ent := f.purchase(t, "plugin_lifetime", "bank")

		assert.ErrorIs(t, f.svc.ToggleAutoRenew(ctx, ent.ID, true), entitlement.ErrNotRenewable)
	})
}

func TestExpireDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	monthly := f.purchase(t, "api_monthly", "stripe")
	require.NoError(t, f.svc.Activate(ctx, monthly.ID, "txn_1", false))

	lifetime := f.purchase(t, "plugin_lifetime", "bank")
	require.NoError(t, f.svc.Activate(ctx, lifetime.ID, "txn_2", false))

	f.now = f.now.AddDate(0, 0, 31)

	n, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gotMonthly, err := f.svc.Get(ctx, monthly.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusExpired, gotMonthly.Status)

	gotLifetime, err := f.svc.Get(ctx, lifetime.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusActive, gotLifetime.Status)

	// Sweep is idempotent.
	n, err = f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestForceStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ent := f.purchase(t, "api_monthly", "stripe")
	require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

	require.NoError(t, f.svc.ForceStatus(ctx, ent.ID, entitlement.StatusFailed))

	got, err := f.svc.Get(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusFailed, got.Status)

	assert.Error(t, f.svc.ForceStatus(ctx, ent.ID, entitlement.Status("bogus")))
}

func TestCancelByGatewaySubID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ent := f.purchase(t, "api_monthly", "stripe")
	require.NoError(t, f.svc.Activate(ctx, ent.ID, "txn_1", false))

	got, err := f.svc.Get(ctx, ent.ID)
	require.NoError(t, err)
	got.GatewaySubID = "sub_123"
	require.NoError(t, f.store.Update(ctx, got))

	require.NoError(t, f.svc.CancelByGatewaySubID(ctx, "stripe", "sub_123"))

	got, err = f.svc.Get(ctx, ent.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StatusCancelled, got.Status)

	assert.ErrorIs(t, f.svc.CancelByGatewaySubID(ctx, "stripe", "sub_missing"), entitlement.ErrNotFound)
}
