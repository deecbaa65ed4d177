package entitlement

import (
	"log/slog"
	"time"
)

// ServiceOption configures optional service dependencies.
type ServiceOption func(*service)

// WithNotifier attaches a lifecycle notifier (purchase emails etc.).
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger; defaults to slog.Default.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock injects the time source. Tests pin it to fixed instants.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}
