package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds Paddle credentials.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway sells through Paddle hosted checkout transactions.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleGateway builds the gateway from config.
func NewPaddleGateway(cfg PaddleConfig) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

var _ Gateway = (*PaddleGateway)(nil)

func (g *PaddleGateway) ID() string { return "paddle" }

func (g *PaddleGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Plan.PaddlePriceID == "" {
		return nil, ErrPlanNotPurchasable
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.Plan.PaddlePriceID,
		Quantity: 1,
	})

	txnReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"entitlement_id": req.EntitlementID.String(),
		},
	}
	if req.SuccessURL != "" {
		txnReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, txnReq)
	if err != nil {
		return nil, fmt.Errorf("paddle: create transaction: %w", err)
	}

	if txn.Checkout == nil || txn.Checkout.URL == nil {
		return nil, errors.New("paddle: no checkout URL on transaction")
	}
	return &Checkout{URL: *txn.Checkout.URL, SessionID: txn.ID}, nil
}

func (g *PaddleGateway) ParseWebhook(r *http.Request) (*Event, error) {
	valid, err := g.verifier.Verify(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("paddle: read webhook body: %w", err)
	}

	return mapPaddleEvent(payload)
}

func mapPaddleEvent(payload []byte) (*Event, error) {
	var evt struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("paddle: decode webhook payload: %w", err)
	}

	out := &Event{
		Type:          EventIgnored,
		ProviderEvent: evt.EventType,
		Raw:           evt.Data,
	}

	str := func(key string) string {
		v, _ := evt.Data[key].(string)
		return v
	}
	if custom, ok := evt.Data["custom_data"].(map[string]any); ok {
		if raw, ok := custom["entitlement_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				out.EntitlementID = id
			}
		}
	}

	switch evt.EventType {
	case "transaction.completed", "transaction.payment_succeeded":
		out.Type = EventPaymentSucceeded
		out.TxnRef = str("id")
		out.SubscriptionID = str("subscription_id")

	case "transaction.payment_failed":
		out.Type = EventPaymentFailed
		out.TxnRef = str("id")
		out.FailureReason = "payment failed"

	case "subscription.canceled":
		out.Type = EventSubscriptionCancelled
		out.SubscriptionID = str("id")
	}

	return out, nil
}
