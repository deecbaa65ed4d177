package entitlement

import "fmt"

// Status is the lifecycle state of an entitlement.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusActive, StatusExpired, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further regular transition leaves s.
// Admin force-set is the only way out of a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// transitions is the closed edge set of the lifecycle. Anything not
// listed here is rejected; the admin force path is the single deliberate
// bypass.
var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusActive, StatusFailed, StatusCancelled},
	StatusActive:         {StatusExpired, StatusCancelled, StatusFailed},
	StatusExpired:        {},
	StatusCancelled:      {},
	StatusFailed:         {},
}

// CanTransition reports whether s -> to is a legal lifecycle edge.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted illegal lifecycle edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid entitlement transition from %q to %q", e.From, e.To)
}
