package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reroute/internal/config"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", Transient(errors.New("503"), 503), true},
		{"deadline", context.DeadlineExceeded, true},
		{"reset message", errors.New("read tcp: connection reset by peer"), true},
		{"permanent", errors.New("bad request"), false},
		{"circuit open", ErrCircuitOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Retryable(tt.err), tt.name)
	}

	assert.Nil(t, Transient(nil, 500))
	assert.True(t, RetryableStatus(429))
	assert.True(t, RetryableStatus(503))
	assert.False(t, RetryableStatus(404))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("temporary"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), fastBackoff(5), "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), fastBackoff(4), "test", func(context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 5, Initial: 50 * time.Millisecond, Max: 100 * time.Millisecond}
	_, err := Retry(ctx, b, "test", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, Transient(errors.New("down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_DelayIsCapped(t *testing.T) {
	t.Parallel()

	b := Backoff{Attempts: 10, Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 400*time.Millisecond, b.Delay(2))
	assert.Equal(t, time.Second, b.Delay(8))

	b.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("feed", 2, time.Minute)
	b.now = func() time.Time { return now }

	fail := Transient(errors.New("down"), 503)
	require.NoError(t, b.Allow())
	b.Report(fail)
	assert.Equal(t, BreakerClosed, b.State())
	require.NoError(t, b.Allow())
	b.Report(fail)
	assert.Equal(t, BreakerOpen, b.State())

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Allow())
	// Only one probe at a time.
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	b.Report(nil)
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("llm", 1, time.Minute)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Report(Transient(errors.New("down"), 500))
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Allow())
	b.Report(Transient(errors.New("still down"), 500))
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewBreaker("llm", 1, time.Minute)
	require.NoError(t, b.Allow())
	b.Report(errors.New("bad request"))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestCall_UsesBreakerAndTimeout(t *testing.T) {
	t.Parallel()

	g := NewGuard("feed", config.ResilienceConfig{
		MaxAttempts:      2,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
		FailureThreshold: 2,
		ResetTimeoutSecs: 60,
	}, 10*time.Millisecond)

	calls := 0
	_, err := Call(context.Background(), g, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, BreakerOpen, g.Breaker.State())

	_, err = Call(context.Background(), g, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestCall_Success(t *testing.T) {
	t.Parallel()

	g := NewGuard("llm", config.ResilienceConfig{}, 0)
	got, err := Call(context.Background(), g, func(context.Context) (string, error) {
		return "fine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", got)
}
