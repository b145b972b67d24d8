package resilience

import (
	"context"
	"time"

	"github.com/sells-group/reroute/internal/config"
)

// Guard bundles the retry policy, breaker and per-attempt timeout used for
// one collaborator.
type Guard struct {
	Name    string
	Backoff Backoff
	Breaker *Breaker
	Timeout time.Duration
}

// NewGuard builds a Guard from the resilience config section.
func NewGuard(name string, cfg config.ResilienceConfig, timeout time.Duration) *Guard {
	return &Guard{
		Name: name,
		Backoff: Backoff{
			Attempts:   cfg.MaxAttempts,
			Initial:    time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
			Max:        time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
			Multiplier: cfg.Multiplier,
			Jitter:     cfg.JitterFraction,
		},
		Breaker: NewBreaker(name, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second),
		Timeout: timeout,
	}
}

// Call runs fn through the guard's breaker with retries. Each attempt gets
// its own timeout when one is configured.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return Retry(ctx, g.Backoff, g.Name, func(ctx context.Context) (T, error) {
		var zero T
		if g.Breaker != nil {
			if err := g.Breaker.Allow(); err != nil {
				return zero, err
			}
		}

		attemptCtx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}

		val, err := fn(attemptCtx)
		if g.Breaker != nil {
			g.Breaker.Report(err)
		}
		return val, err
	})
}
