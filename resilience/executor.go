// Package resilience runs network operations with bounded retries, a hard
// per-attempt timeout and deterministic exponential backoff.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Predicate decides whether an error may be retried.
type Predicate func(err error) bool

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config controls one Execute call.
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	PerAttemptTimeout time.Duration
	RetryPredicate    Predicate

	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, backoff time.Duration, err error)
}

// DefaultConfig is 3 attempts, 200ms initial backoff doubling up to 2s, 5s per attempt.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        2 * time.Second,
		PerAttemptTimeout: 5 * time.Second,
		RetryPredicate:    DefaultRetryPredicate,
	}
}

// WithPredicate returns a copy of c using p.
func (c Config) WithPredicate(p Predicate) Config {
	c.RetryPredicate = p
	return c
}

// WithTimeout returns a copy of c with a different per-attempt timeout.
func (c Config) WithTimeout(d time.Duration) Config {
	c.PerAttemptTimeout = d
	return c
}

// Logging returns a copy of c that logs every retry at warn level.
func (c Config) Logging(log *zap.Logger, op string) Config {
	prev := c.OnRetry
	c.OnRetry = func(attempt int, backoff time.Duration, err error) {
		log.Warn("retrying operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if prev != nil {
			prev(attempt, backoff, err)
		}
	}
	return c
}

// Backoff returns the sleep between attempt n and n+1 (n starts at 1):
// min(InitialBackoff * BackoffMultiplier^(n-1), MaxBackoff).
func (c Config) Backoff(n int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && time.Duration(d) > c.MaxBackoff {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

type result[T any] struct {
	val T
	err error
}

// Execute runs op until it succeeds, the predicate rejects its error, or
// MaxAttempts is reached. It returns the last error unchanged together with the
// number of attempts made.
func Execute[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	predicate := cfg.RetryPredicate
	if predicate == nil {
		predicate = DefaultRetryPredicate
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		val, err := runAttempt(ctx, cfg.PerAttemptTimeout, op)
		if err == nil {
			return val, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts || ctx.Err() != nil || !predicate(err) {
			return zero, attempt, lastErr
		}

		backoff := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, backoff, err)
		}
		if err := sleep(ctx, backoff); err != nil {
			return zero, attempt, lastErr
		}
	}
	return zero, maxAttempts, lastErr
}

// runAttempt enforces the timeout even when op ignores its context.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := op(attemptCtx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-attemptCtx.Done():
		var zero T
		return zero, attemptCtx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
