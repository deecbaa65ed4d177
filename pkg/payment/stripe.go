package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeGateway sells through Stripe Checkout: one-time plans as
// payment mode sessions, recurring plans as subscription mode sessions.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway builds the gateway from config.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	return &StripeGateway{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

var _ Gateway = (*StripeGateway)(nil)

func (g *StripeGateway) ID() string { return "stripe" }

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Plan.StripePriceID == "" {
		return nil, ErrPlanNotPurchasable
	}

	mode := stripe.CheckoutSessionModePayment
	if req.Plan.IsRecurring() {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.Plan.StripePriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.EntitlementID.String()),
	}
	params.Context = ctx
	// Duplicated into metadata so subscription-scoped events can be tied
	// back without loading the session.
	params.AddMetadata("entitlement_id", req.EntitlementID.String())
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

func (g *StripeGateway) ParseWebhook(r *http.Request) (*Event, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe: read webhook body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), g.webhookSecret)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return mapStripeEvent(event)
}

func mapStripeEvent(event stripe.Event) (*Event, error) {
	out := &Event{
		Type:          EventIgnored,
		ProviderEvent: string(event.Type),
	}

	var object map[string]any
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
			return nil, fmt.Errorf("stripe: decode event object: %w", err)
		}
		out.Raw = object
	}

	str := func(key string) string {
		v, _ := object[key].(string)
		return v
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		out.Type = EventPaymentSucceeded
		if id, err := uuid.Parse(str("client_reference_id")); err == nil {
			out.EntitlementID = id
		}
		out.SubscriptionID = str("subscription")
		out.TxnRef = str("payment_intent")
		if out.TxnRef == "" {
			out.TxnRef = str("id")
		}

	case "invoice.payment_failed":
		out.Type = EventPaymentFailed
		out.SubscriptionID = str("subscription")
		out.TxnRef = str("id")
		out.FailureReason = "invoice payment failed"
		if meta, ok := object["metadata"].(map[string]any); ok {
			if raw, ok := meta["entitlement_id"].(string); ok {
				if id, err := uuid.Parse(raw); err == nil {
					out.EntitlementID = id
				}
			}
		}

	case "customer.subscription.deleted":
		out.Type = EventSubscriptionCancelled
		out.SubscriptionID = str("id")
	}

	return out, nil
}
