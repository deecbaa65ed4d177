package payment

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	paypal "github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/orunkhq/orunk/pkg/plan"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("routes by identifier", func(t *testing.T) {
		t.Parallel()

		bank := NewBankGateway(BankConfig{})
		reg := NewRegistry(bank)

		gw, err := reg.Get("bank")
		require.NoError(t, err)
		assert.Equal(t, "bank", gw.ID())

		_, err = reg.Get("stripe")
		assert.ErrorIs(t, err, ErrUnknownGateway)

		assert.Equal(t, []string{"bank"}, reg.IDs())
	})

	t.Run("duplicate identifiers panic", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			NewRegistry(NewBankGateway(BankConfig{}), NewBankGateway(BankConfig{}))
		})
	})
}

func TestBankGateway(t *testing.T) {
	t.Parallel()

	gw := NewBankGateway(BankConfig{Instructions: "wire to IBAN XX00"})
	entID := uuid.New()

	checkout, err := gw.CreateCheckout(context.Background(), CheckoutRequest{EntitlementID: entID})
	require.NoError(t, err)
	assert.True(t, checkout.Pending)
	assert.Empty(t, checkout.URL)
	assert.Equal(t, entID.String(), checkout.SessionID)
	assert.Equal(t, "wire to IBAN XX00", checkout.Instructions)

	_, err = gw.ParseWebhook(httptest.NewRequest("POST", "/webhooks/bank", nil))
	assert.ErrorIs(t, err, ErrNoWebhook)
}

func stripeEvent(t *testing.T, eventType string, object map[string]any) stripe.Event {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestMapStripeEvent(t *testing.T) {
	t.Parallel()

	entID := uuid.New()

	t.Run("checkout completed", func(t *testing.T) {
		t.Parallel()

		evt, err := mapStripeEvent(stripeEvent(t, "checkout.session.completed", map[string]any{
			"id":                  "cs_123",
			"client_reference_id": entID.String(),
			"subscription":        "sub_123",
			"payment_intent":      "pi_123",
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentSucceeded, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
		assert.Equal(t, "sub_123", evt.SubscriptionID)
		assert.Equal(t, "pi_123", evt.TxnRef)
	})

	t.Run("checkout without payment intent falls back to session id", func(t *testing.T) {
		t.Parallel()

		evt, err := mapStripeEvent(stripeEvent(t, "checkout.session.completed", map[string]any{
			"id":                  "cs_456",
			"client_reference_id": entID.String(),
		}))
		require.NoError(t, err)
		assert.Equal(t, "cs_456", evt.TxnRef)
	})

	t.Run("invoice payment failed", func(t *testing.T) {
		t.Parallel()

		evt, err := mapStripeEvent(stripeEvent(t, "invoice.payment_failed", map[string]any{
			"id":           "in_123",
			"subscription": "sub_123",
			"metadata":     map[string]any{"entitlement_id": entID.String()},
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentFailed, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
		assert.Equal(t, "sub_123", evt.SubscriptionID)
		assert.NotEmpty(t, evt.FailureReason)
	})

	t.Run("subscription deleted", func(t *testing.T) {
		t.Parallel()

		evt, err := mapStripeEvent(stripeEvent(t, "customer.subscription.deleted", map[string]any{
			"id": "sub_123",
		}))
		require.NoError(t, err)

		assert.Equal(t, EventSubscriptionCancelled, evt.Type)
		assert.Equal(t, "sub_123", evt.SubscriptionID)
	})

	t.Run("unhandled events pass through as ignored", func(t *testing.T) {
		t.Parallel()

		evt, err := mapStripeEvent(stripeEvent(t, "charge.refunded", map[string]any{"id": "ch_1"}))
		require.NoError(t, err)
		assert.Equal(t, EventIgnored, evt.Type)
		assert.Equal(t, "charge.refunded", evt.ProviderEvent)
	})
}

func TestMapPayPalEvent(t *testing.T) {
	t.Parallel()

	entID := uuid.New()
	payload := func(eventType string, resource map[string]any) []byte {
		raw, err := json.Marshal(map[string]any{
			"event_type": eventType,
			"resource":   resource,
		})
		require.NoError(t, err)
		return raw
	}

	t.Run("capture completed", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPayPalEvent(payload("PAYMENT.CAPTURE.COMPLETED", map[string]any{
			"id":        "CAP-1",
			"custom_id": entID.String(),
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentSucceeded, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
		assert.Equal(t, "CAP-1", evt.TxnRef)
	})

	t.Run("subscription activated", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPayPalEvent(payload("BILLING.SUBSCRIPTION.ACTIVATED", map[string]any{
			"id":        "I-SUB1",
			"custom_id": entID.String(),
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentSucceeded, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
		assert.Equal(t, "I-SUB1", evt.SubscriptionID)
	})

	t.Run("capture denied", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPayPalEvent(payload("PAYMENT.CAPTURE.DENIED", map[string]any{
			"id":        "CAP-2",
			"custom_id": entID.String(),
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentFailed, evt.Type)
		assert.NotEmpty(t, evt.FailureReason)
	})

	t.Run("subscription cancelled", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPayPalEvent(payload("BILLING.SUBSCRIPTION.CANCELLED", map[string]any{
			"id": "I-SUB1",
		}))
		require.NoError(t, err)

		assert.Equal(t, EventSubscriptionCancelled, evt.Type)
		assert.Equal(t, "I-SUB1", evt.SubscriptionID)
	})

	t.Run("garbage payload", func(t *testing.T) {
		t.Parallel()

		_, err := mapPayPalEvent([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestMapPaddleEvent(t *testing.T) {
	t.Parallel()

	entID := uuid.New()
	payload := func(eventType string, data map[string]any) []byte {
		raw, err := json.Marshal(map[string]any{
			"event_type": eventType,
			"data":       data,
		})
		require.NoError(t, err)
		return raw
	}

	t.Run("transaction completed", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPaddleEvent(payload("transaction.completed", map[string]any{
			"id":              "txn_1",
			"subscription_id": "sub_1",
			"custom_data":     map[string]any{"entitlement_id": entID.String()},
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentSucceeded, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
		assert.Equal(t, "txn_1", evt.TxnRef)
		assert.Equal(t, "sub_1", evt.SubscriptionID)
	})

	t.Run("payment failed", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPaddleEvent(payload("transaction.payment_failed", map[string]any{
			"id":          "txn_2",
			"custom_data": map[string]any{"entitlement_id": entID.String()},
		}))
		require.NoError(t, err)

		assert.Equal(t, EventPaymentFailed, evt.Type)
		assert.Equal(t, entID, evt.EntitlementID)
	})

	t.Run("subscription canceled", func(t *testing.T) {
		t.Parallel()

		evt, err := mapPaddleEvent(payload("subscription.canceled", map[string]any{
			"id": "sub_1",
		}))
		require.NoError(t, err)

		assert.Equal(t, EventSubscriptionCancelled, evt.Type)
		assert.Equal(t, "sub_1", evt.SubscriptionID)
	})
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount int64
		want   string
	}{
		{999, "9.99"},
		{100, "1.00"},
		{5, "0.05"},
		{123456, "1234.56"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			got := formatAmount(plan.Money{Amount: tt.amount, Currency: "USD"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindApproveLink(t *testing.T) {
	t.Parallel()

	links := []paypal.Link{
		{Rel: "self", Href: "https://api.paypal.com/orders/1"},
		{Rel: "approve", Href: "https://www.paypal.com/checkoutnow?token=1"},
	}
	assert.Equal(t, "https://www.paypal.com/checkoutnow?token=1", findApproveLink(links))
	assert.Equal(t, "", findApproveLink(nil))
}
