// Package retry holds the two request policies used against the geocoding
// provider: a bounded retry with backoff around each request, and a pacing
// limiter applied to every attempt whatever its outcome.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based) before the next one.
type BackoffFunc func(attempt int) time.Duration

// Linear grows the delay by base on every attempt: base, 2*base, 3*base...
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Policy retries a function up to MaxAttempts times.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Clock       clockwork.Clock
}

// NewPolicy creates a Policy on the real clock.
func NewPolicy(maxAttempts int, backoff BackoffFunc) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Clock:       clockwork.NewRealClock(),
	}
}

// Do calls fn until it succeeds or attempts run out. fn receives the 1-based
// attempt number. The last error is returned wrapped; no delay follows the
// final attempt.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt-1, err, lastErr)
			}
			return fmt.Errorf("retry aborted: %w", err)
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, ctx.Err(), lastErr)
		case <-clock.After(delay):
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", attempts, lastErr)
}
