// Package orunk is the billing core behind a digital-products storefront.
//
// It tracks entitlements (one record per purchase or subscription) through
// their lifecycle, issues API and license keys, counts metered usage
// against plan quotas, enforces per-license site activation limits, and
// normalizes payment events from Stripe, PayPal, Paddle, and offline bank
// transfers into a single event model.
//
// The module is organized as a toolkit: reusable concern packages live
// under pkg/, and modules/billing exposes the whole thing as a mountable
// chi router. Nothing here owns an HTTP server or an identity system; the
// host application provides both and injects the acting user via request
// context.
package orunk
