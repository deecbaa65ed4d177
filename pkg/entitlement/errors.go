package entitlement

import "errors"

var (
	ErrNotFound      = errors.New("entitlement not found")
	ErrAlreadyExists = errors.New("entitlement already exists")

	// ErrAlreadyActive signals an activation no-op: the entitlement is
	// already active and nothing was changed. Webhook handlers treat it
	// as success so duplicate deliveries stay harmless.
	ErrAlreadyActive = errors.New("entitlement already active")
	ErrNotPending    = errors.New("entitlement is not awaiting payment")
	ErrNotActive     = errors.New("entitlement is not active")

	ErrSwitchAlreadyPending = errors.New("plan switch already pending")
	ErrNoSwitchPending      = errors.New("no plan switch pending")
	ErrFeatureMismatch      = errors.New("target plan sells a different feature")
	ErrPlanUnchanged        = errors.New("target plan equals current plan")

	ErrNotRenewable = errors.New("plan is not renewable")
	ErrPlanInactive = errors.New("plan is not available for purchase")
)
