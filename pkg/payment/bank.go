package payment

import (
	"context"
	"net/http"
)

// BankConfig holds the transfer instructions shown to the buyer.
type BankConfig struct {
	Instructions string `env:"BANK_TRANSFER_INSTRUCTIONS"`
}

// BankGateway is the offline path: no hosted checkout and no webhooks.
// The entitlement stays pending_payment until an admin confirms the
// transfer arrived and approves it.
type BankGateway struct {
	instructions string
}

// NewBankGateway builds the gateway from config.
func NewBankGateway(cfg BankConfig) *BankGateway {
	return &BankGateway{instructions: cfg.Instructions}
}

var _ Gateway = (*BankGateway)(nil)

func (g *BankGateway) ID() string { return "bank" }

func (g *BankGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	return &Checkout{
		SessionID:    req.EntitlementID.String(),
		Pending:      true,
		Instructions: g.instructions,
	}, nil
}

func (g *BankGateway) ParseWebhook(*http.Request) (*Event, error) {
	return nil, ErrNoWebhook
}
