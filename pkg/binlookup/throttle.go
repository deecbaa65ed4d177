package binlookup

import (
	"context"

	"github.com/orunkhq/orunk/pkg/quota"
)

// Throttle meters anonymous lookups per client IP in hourly windows.
// Exceeding the window does not reject; it tells the caller to demand a
// captcha before serving.
type Throttle struct {
	counter *quota.Counter
	hourly  int64
}

// NewThrottle wires a throttle. hourly at or below zero disables it.
func NewThrottle(counter *quota.Counter, hourly int64) *Throttle {
	if counter == nil {
		panic("binlookup: quota counter is required")
	}
	return &Throttle{counter: counter, hourly: hourly}
}

// Hit records one anonymous lookup for ip and reports whether the
// caller must now solve a captcha.
func (t *Throttle) Hit(ctx context.Context, ip string) (captchaRequired bool, err error) {
	if t.hourly <= 0 {
		return false, nil
	}

	u, err := t.counter.IncrementAndCheck(ctx, "ip:"+ip, quota.ScopeHour, t.hourly)
	if err != nil {
		return false, err
	}
	return u.Exceeded, nil
}
