package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces provider requests so that the sustained rate never exceeds
// one request per interval. It holds a single token; every attempt, whether
// it succeeds, fails or is a retry, spends one.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewLimiter allows one request per interval. A non-positive interval
// disables pacing.
func NewLimiter(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the next request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
