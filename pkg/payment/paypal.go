package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	paypal "github.com/plutov/paypal/v4"
)

// PayPalConfig holds PayPal REST credentials.
type PayPalConfig struct {
	ClientID    string `env:"PAYPAL_CLIENT_ID,required"`
	Secret      string `env:"PAYPAL_SECRET,required"`
	WebhookID   string `env:"PAYPAL_WEBHOOK_ID,required"`
	Environment string `env:"PAYPAL_ENVIRONMENT" envDefault:"live"`
}

// PayPalGateway sells one-time plans through PayPal orders and
// recurring plans through PayPal subscriptions.
type PayPalGateway struct {
	client    *paypal.Client
	webhookID string
}

// NewPayPalGateway builds the gateway from config.
func NewPayPalGateway(cfg PayPalConfig) (*PayPalGateway, error) {
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.New("paypal client id and secret are required")
	}
	if cfg.WebhookID == "" {
		return nil, errors.New("paypal webhook id is required")
	}

	base := paypal.APIBaseLive
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		base = paypal.APIBaseSandBox
	case "live", "production", "":
	default:
		return nil, fmt.Errorf("invalid paypal environment: %s", cfg.Environment)
	}

	client, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, fmt.Errorf("create paypal client: %w", err)
	}

	return &PayPalGateway{client: client, webhookID: cfg.WebhookID}, nil
}

var _ Gateway = (*PayPalGateway)(nil)

func (g *PayPalGateway) ID() string { return "paypal" }

func (g *PayPalGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Plan.IsRecurring() {
		return g.createSubscription(ctx, req)
	}
	return g.createOrder(ctx, req)
}

func (g *PayPalGateway) createOrder(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.EntitlementID.String(),
		CustomID:    req.EntitlementID.String(),
		Description: req.Plan.Name,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: req.Plan.Price.Currency,
			Value:    formatAmount(req.Plan.Price),
		},
	}}

	appCtx := &paypal.ApplicationContext{
		ReturnURL: req.SuccessURL,
		CancelURL: req.CancelURL,
	}

	order, err := g.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, fmt.Errorf("paypal: create order: %w", err)
	}

	approveURL := findApproveLink(order.Links)
	if approveURL == "" {
		return nil, errors.New("paypal: no approve link on order")
	}
	return &Checkout{URL: approveURL, SessionID: order.ID}, nil
}

func (g *PayPalGateway) createSubscription(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Plan.PayPalPlanID == "" {
		return nil, ErrPlanNotPurchasable
	}

	sub, err := g.client.CreateSubscription(ctx, paypal.SubscriptionBase{
		PlanID:   req.Plan.PayPalPlanID,
		CustomID: req.EntitlementID.String(),
		ApplicationContext: &paypal.ApplicationContext{
			ReturnURL: req.SuccessURL,
			CancelURL: req.CancelURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("paypal: create subscription: %w", err)
	}

	approveURL := findApproveLink(sub.Links)
	if approveURL == "" {
		return nil, errors.New("paypal: no approve link on subscription")
	}
	return &Checkout{URL: approveURL, SessionID: sub.ID}, nil
}

func (g *PayPalGateway) ParseWebhook(r *http.Request) (*Event, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("paypal: read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(payload))

	resp, err := g.client.VerifyWebhookSignature(r.Context(), r, g.webhookID)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if resp.VerificationStatus != "SUCCESS" {
		return nil, ErrInvalidSignature
	}

	return mapPayPalEvent(payload)
}

func mapPayPalEvent(payload []byte) (*Event, error) {
	var evt struct {
		EventType string         `json:"event_type"`
		Resource  map[string]any `json:"resource"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("paypal: decode webhook payload: %w", err)
	}

	out := &Event{
		Type:          EventIgnored,
		ProviderEvent: evt.EventType,
		Raw:           evt.Resource,
	}

	str := func(key string) string {
		v, _ := evt.Resource[key].(string)
		return v
	}
	if raw := str("custom_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			out.EntitlementID = id
		}
	}

	switch evt.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.SALE.COMPLETED":
		out.Type = EventPaymentSucceeded
		out.TxnRef = str("id")
		out.SubscriptionID = str("billing_agreement_id")

	case "BILLING.SUBSCRIPTION.ACTIVATED":
		out.Type = EventPaymentSucceeded
		out.SubscriptionID = str("id")

	case "PAYMENT.CAPTURE.DENIED":
		out.Type = EventPaymentFailed
		out.TxnRef = str("id")
		out.FailureReason = "payment capture denied"

	case "BILLING.SUBSCRIPTION.CANCELLED":
		out.Type = EventSubscriptionCancelled
		out.SubscriptionID = str("id")
	}

	return out, nil
}

func findApproveLink(links []paypal.Link) string {
	for _, link := range links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}
