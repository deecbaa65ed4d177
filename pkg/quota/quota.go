package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scope is the calendar window a counter is bucketed by.
type Scope string

const (
	ScopeHour  Scope = "hour"
	ScopeDay   Scope = "day"
	ScopeMonth Scope = "month"
)

// ErrUnknownScope is returned for a scope outside the defined set.
var ErrUnknownScope = errors.New("quota: unknown scope")

// bucketSlack keeps a bucket readable slightly past its window so a
// request straddling the boundary still sees its own count.
const bucketSlack = time.Hour

// PeriodKey returns the storage key for subject's counter in the window
// containing now. Subjects are opaque; callers typically pass an API
// key or an IP address.
func (s Scope) PeriodKey(subject string, now time.Time) (string, error) {
	now = now.UTC()
	var stamp string
	switch s {
	case ScopeHour:
		stamp = now.Format("2006010215")
	case ScopeDay:
		stamp = now.Format("20060102")
	case ScopeMonth:
		stamp = now.Format("200601")
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
	return fmt.Sprintf("quota:%s:%s:%s", s, stamp, subject), nil
}

// TTL returns how long a bucket started in the window containing now
// needs to live.
func (s Scope) TTL(now time.Time) time.Duration {
	now = now.UTC()
	var end time.Time
	switch s {
	case ScopeHour:
		end = now.Truncate(time.Hour).Add(time.Hour)
	case ScopeDay:
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case ScopeMonth:
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		end = now.AddDate(0, 1, 0)
	}
	return end.Sub(now) + bucketSlack
}

// Usage is the state of one counter after an operation. A zero Limit
// means unmetered; Exceeded is only ever true for limited counters.
type Usage struct {
	Count    int64
	Limit    int64
	Exceeded bool
}

// Remaining returns how many requests the window still allows, zero
// when exhausted. Unmetered counters report zero as well; check Limit
// first.
func (u Usage) Remaining() int64 {
	if u.Limit == 0 || u.Count >= u.Limit {
		return 0
	}
	return u.Limit - u.Count
}

// Store persists counters. Incr atomically bumps the counter by one,
// setting expiry when the bucket is created.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// Counter meters subjects against per-window limits.
type Counter struct {
	store Store
	now   func() time.Time
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithCounterClock overrides the time source, used by tests.
func WithCounterClock(now func() time.Time) CounterOption {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCounter wires a counter over the given store.
func NewCounter(store Store, opts ...CounterOption) *Counter {
	if store == nil {
		panic("quota: Store is required")
	}

	c := &Counter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IncrementAndCheck records one hit for subject in the scope's current
// window and reports the resulting usage. The hit is counted even when
// it lands over the limit; Exceeded means this request should be
// rejected. limit zero meters without enforcing.
func (c *Counter) IncrementAndCheck(ctx context.Context, subject string, scope Scope, limit int64) (Usage, error) {
	now := c.now()
	key, err := scope.PeriodKey(subject, now)
	if err != nil {
		return Usage{}, err
	}

	count, err := c.store.Incr(ctx, key, scope.TTL(now))
	if err != nil {
		return Usage{}, fmt.Errorf("quota: increment %s: %w", key, err)
	}

	return Usage{
		Count:    count,
		Limit:    limit,
		Exceeded: limit > 0 && count > limit,
	}, nil
}

// Current reads the scope's current window without recording a hit.
func (c *Counter) Current(ctx context.Context, subject string, scope Scope, limit int64) (Usage, error) {
	key, err := scope.PeriodKey(subject, c.now())
	if err != nil {
		return Usage{}, err
	}

	count, err := c.store.Get(ctx, key)
	if err != nil {
		return Usage{}, fmt.Errorf("quota: read %s: %w", key, err)
	}

	return Usage{
		Count:    count,
		Limit:    limit,
		Exceeded: limit > 0 && count > limit,
	}, nil
}
