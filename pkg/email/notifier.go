package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/entitlement"
)

// AddressLookup resolves an owner ID to their billing email. The host
// application owns accounts, so it supplies this.
type AddressLookup func(ctx context.Context, ownerID uuid.UUID) (string, error)

// BillingNotifier turns entitlement lifecycle events into transactional
// mail. It implements entitlement.Notifier; send failures are logged
// and swallowed.
type BillingNotifier struct {
	sender EmailSender
	lookup AddressLookup
	log    *slog.Logger
}

// NewBillingNotifier wires the notifier.
func NewBillingNotifier(sender EmailSender, lookup AddressLookup, log *slog.Logger) *BillingNotifier {
	if sender == nil {
		panic("email: sender is required")
	}
	if lookup == nil {
		panic("email: address lookup is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BillingNotifier{sender: sender, lookup: lookup, log: log}
}

var _ entitlement.Notifier = (*BillingNotifier)(nil)

func (n *BillingNotifier) EntitlementActivated(ctx context.Context, ent *entitlement.Entitlement) {
	body := fmt.Sprintf(
		"<p>Your purchase of plan <strong>%s</strong> is now active.</p>",
		html.EscapeString(ent.PlanID))
	if key := ent.Key(); key != "" {
		body += fmt.Sprintf("<p>Your key: <code>%s</code></p>", html.EscapeString(key))
	}
	if ent.ExpiresAt != nil {
		body += fmt.Sprintf("<p>Access runs until %s.</p>", ent.ExpiresAt.Format("January 2, 2006"))
	}

	n.send(ctx, ent, SendEmailParams{
		Subject:  "Your purchase is active",
		BodyHTML: body,
		Tag:      "entitlement-activated",
	})
}

func (n *BillingNotifier) EntitlementFailed(ctx context.Context, ent *entitlement.Entitlement) {
	body := fmt.Sprintf(
		"<p>A payment for plan <strong>%s</strong> failed.</p><p>Reason: %s</p>"+
			"<p>Please update your payment details to keep access.</p>",
		html.EscapeString(ent.PlanID), html.EscapeString(ent.FailureReason))

	n.send(ctx, ent, SendEmailParams{
		Subject:  "Payment failed",
		BodyHTML: body,
		Tag:      "entitlement-failed",
	})
}

// KeyRegenerated notifies the owner that a fresh key replaced the old
// one.
func (n *BillingNotifier) KeyRegenerated(ctx context.Context, ent *entitlement.Entitlement) {
	body := fmt.Sprintf(
		"<p>The key for your plan <strong>%s</strong> was regenerated.</p>"+
			"<p>New key: <code>%s</code></p><p>The previous key no longer works.</p>",
		html.EscapeString(ent.PlanID), html.EscapeString(ent.Key()))

	n.send(ctx, ent, SendEmailParams{
		Subject:  "Your key was regenerated",
		BodyHTML: body,
		Tag:      "key-regenerated",
	})
}

func (n *BillingNotifier) send(ctx context.Context, ent *entitlement.Entitlement, params SendEmailParams) {
	addr, err := n.lookup(ctx, ent.OwnerID)
	if err != nil {
		n.log.WarnContext(ctx, "no billing address for owner",
			"owner_id", ent.OwnerID, "error", err)
		return
	}
	params.SendTo = addr

	if err := n.sender.SendEmail(ctx, params); err != nil {
		n.log.ErrorContext(ctx, "billing email failed",
			"entitlement_id", ent.ID, "tag", params.Tag, "error", err)
	}
}
