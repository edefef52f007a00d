package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestLinear(t *testing.T) {
	b := Linear(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, b(1))
	assert.Equal(t, 3*time.Second, b(2))
	assert.Equal(t, 4500*time.Millisecond, b(3))
}

func TestPolicy_SucceedsFirstTry(t *testing.T) {
	p := Policy{MaxAttempts: 4, Backoff: Linear(time.Hour), Clock: clockwork.NewFakeClock()}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ExhaustsExactlyMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, Backoff: func(int) time.Duration { return 0 }}

	var attempts []int
	err := p.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		return errBoom
	})

	require.Error(t, err)
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "max retry attempts (2)")
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestPolicy_RecoversAfterFailure(t *testing.T) {
	p := Policy{MaxAttempts: 4}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_LinearBackoffOnFakeClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	p := Policy{MaxAttempts: 3, Backoff: Linear(time.Second), Clock: clock}

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(int) error {
			calls.Add(1)
			return errBoom
		})
	}()

	// First backoff: 1s.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(1), calls.Load())
	clock.Advance(time.Second)

	// Second backoff: 2s. One second is not enough.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(2), calls.Load())
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	clock.Advance(time.Second)

	select {
	case err := <-done:
		require.ErrorIs(t, err, errBoom)
	case <-ctx.Done():
		t.Fatal("policy did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 4, Backoff: Linear(time.Hour), Clock: clockwork.NewFakeClock()}

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errBoom
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "last error: boom")
	assert.Equal(t, 1, calls)
}

func TestPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(int) error {
		calls++
		return errBoom
	})
	assert.Equal(t, 1, calls)
}

func TestLimiter_SpacesRequests(t *testing.T) {
	l := NewLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(ctx))
	}

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, l.Interval())
}

func TestLimiter_FirstRequestIsImmediate(t *testing.T) {
	l := NewLimiter(time.Hour)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_RespectsContext(t *testing.T) {
	l := NewLimiter(time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0)

	start := time.Now()
	for range 10 {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
