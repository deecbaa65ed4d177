// Package payment abstracts the checkout providers behind one Gateway
// interface. Hosted providers (Stripe, PayPal, Paddle) redirect the
// buyer to a provider-hosted page and report the outcome through
// signed webhooks; the bank gateway is fully offline and settles
// through admin approval instead.
//
// Webhook payloads are normalized into Event values carrying the
// entitlement the payment belongs to, so the billing layer never sees
// provider-specific shapes.
package payment
