package license

import "errors"

var (
	// ErrKeyspaceExhausted is returned when key generation cannot produce
	// a unique key within the retry budget. Activation must fail rather
	// than hand out a colliding key.
	ErrKeyspaceExhausted = errors.New("license: could not generate a unique key")

	// ErrActivationLimitReached is returned when registering a site would
	// exceed the entitlement's effective activation ceiling.
	ErrActivationLimitReached = errors.New("license: activation limit reached")

	// ErrActivationNotFound is returned when deactivating a site that was
	// never activated for the key.
	ErrActivationNotFound = errors.New("license: activation not found")

	// ErrKeyInactive is returned when the key exists but its entitlement
	// no longer grants access.
	ErrKeyInactive = errors.New("license: key is not active")

	// ErrInvalidSiteURL is returned when the site identifier cannot be
	// normalized to a host.
	ErrInvalidSiteURL = errors.New("license: invalid site url")

	// ErrKeyNotSupported is returned when a key operation targets an
	// entitlement whose plan issues no key of that kind.
	ErrKeyNotSupported = errors.New("license: plan does not use this key kind")
)
