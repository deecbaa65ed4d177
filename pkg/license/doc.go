// Package license issues the keys an entitlement carries and tracks
// where license keys are activated.
//
// Key issuance is lazy and at-most-once: the Issuer only generates a
// key on first activation, and generation fails closed when it cannot
// prove uniqueness. The Tracker enforces per-entitlement activation
// ceilings for license keys, counting only currently active sites so a
// deactivated install frees its slot.
package license
