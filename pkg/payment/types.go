package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/plan"
)

// EventType is the normalized class of a provider webhook.
type EventType string

const (
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventSubscriptionCancelled EventType = "subscription_cancelled"

	// EventIgnored marks provider events the billing layer does not act
	// on. They are still verified, so acknowledging them is safe.
	EventIgnored EventType = "ignored"
)

// Event is a verified, normalized provider webhook.
type Event struct {
	Type          EventType
	ProviderEvent string // original provider event name

	// EntitlementID is recovered from the metadata planted at checkout;
	// uuid.Nil when the event identifies itself by subscription instead.
	EntitlementID  uuid.UUID
	SubscriptionID string
	TxnRef         string
	FailureReason  string

	Raw map[string]any
}

// CheckoutRequest is what a gateway needs to start a checkout.
type CheckoutRequest struct {
	EntitlementID uuid.UUID
	Plan          plan.Plan
	Email         string
	SuccessURL    string
	CancelURL     string
}

// Checkout is the started session. Hosted gateways fill URL; offline
// gateways set Pending with payment instructions instead, and the
// entitlement waits for admin approval.
type Checkout struct {
	URL          string
	SessionID    string
	Pending      bool
	Instructions string
}

// Gateway is one payment provider integration.
type Gateway interface {
	// ID is the stable identifier routes and entitlement records use,
	// e.g. "stripe".
	ID() string

	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)

	// ParseWebhook verifies the request's signature and normalizes the
	// payload. Implementations must reject unverifiable requests with
	// ErrInvalidSignature.
	ParseWebhook(r *http.Request) (*Event, error)
}

// formatAmount renders a smallest-unit amount as a decimal string, the
// form PayPal's API expects.
func formatAmount(m plan.Money) string {
	return fmt.Sprintf("%d.%02d", m.Amount/100, m.Amount%100)
}
