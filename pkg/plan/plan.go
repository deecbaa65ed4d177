package plan

import "time"

// BillingKind distinguishes single purchases from renewing subscriptions.
type BillingKind string

const (
	BillingOneTime   BillingKind = "one_time"
	BillingRecurring BillingKind = "recurring"
)

// LifetimeSentinelDays is the legacy catalog encoding for perpetual
// access. Plans at or above this duration never expire; internally a
// lifetime entitlement carries a nil expiry rather than a far-future
// date.
const LifetimeSentinelDays = 9999

// Money is an amount in the smallest currency unit.
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// Plan is a priced configuration of a feature: duration, quotas,
// activation ceiling, and which kind of key the buyer receives.
type Plan struct {
	ID          string `yaml:"id"`
	FeatureKey  string `yaml:"feature_key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Price        Money       `yaml:"price"`
	Kind         BillingKind `yaml:"kind"`
	DurationDays int         `yaml:"duration_days"`

	// Nil quota or limit means unlimited.
	RequestsPerDay   *int64 `yaml:"requests_per_day"`
	RequestsPerMonth *int64 `yaml:"requests_per_month"`
	ActivationLimit  *int   `yaml:"activation_limit"`

	RequiresAPIKey     bool `yaml:"requires_api_key"`
	RequiresLicenseKey bool `yaml:"requires_license_key"`

	// Gateway-side identifiers for hosted checkouts.
	StripePriceID string `yaml:"stripe_price_id"`
	PayPalPlanID  string `yaml:"paypal_plan_id"`
	PaddlePriceID string `yaml:"paddle_price_id"`

	Active bool `yaml:"active"`
}

// IsLifetime reports whether the plan grants perpetual access. Zero and
// negative durations are treated as lifetime alongside the legacy
// sentinel.
func (p Plan) IsLifetime() bool {
	return p.DurationDays <= 0 || p.DurationDays >= LifetimeSentinelDays
}

// IsRecurring reports whether the plan renews.
func (p Plan) IsRecurring() bool {
	return p.Kind == BillingRecurring
}

// ExpiryFrom computes the expiry for an entitlement purchased at start.
// Lifetime plans return nil.
func (p Plan) ExpiryFrom(start time.Time) *time.Time {
	if p.IsLifetime() {
		return nil
	}
	exp := start.AddDate(0, 0, p.DurationDays).UTC()
	return &exp
}

// RequiresKey reports whether activation must issue any kind of key.
func (p Plan) RequiresKey() bool {
	return p.RequiresAPIKey || p.RequiresLicenseKey
}
