package payment

import "errors"

var (
	// ErrUnknownGateway is returned when no registered gateway matches
	// the requested identifier.
	ErrUnknownGateway = errors.New("payment: unknown gateway")

	// ErrInvalidSignature is returned for webhook requests that fail
	// signature verification. Handlers must answer these with 4xx so the
	// provider does not retry forever.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")

	// ErrNoWebhook is returned by gateways that have no webhook channel.
	ErrNoWebhook = errors.New("payment: gateway does not deliver webhooks")

	// ErrPlanNotPurchasable is returned when the plan lacks the
	// provider-side identifier the gateway needs.
	ErrPlanNotPurchasable = errors.New("payment: plan is not purchasable on this gateway")
)
