package fetch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// RetryPolicy wraps a single operation with bounded, backed-off retries.
// Backoff(n) is the wait before retry n (n >= 1); it is never applied before the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(retry int) time.Duration
	Retryable   func(err error) bool
	OnRetry     func(attempt int, delay time.Duration, lastErr error) // Optional hook, e.g. for logging
}

// ExponentialBackoff returns multiplier * 2^(retry-1), clamped to [minDelay, maxDelay]
func ExponentialBackoff(multiplier, minDelay, maxDelay time.Duration) func(retry int) time.Duration {
	return func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		backoff := float64(multiplier) * math.Pow(2, float64(retry-1))
		delay := time.Duration(backoff)
		if backoff > float64(maxDelay) || delay > maxDelay { // float check first guards overflow
			delay = maxDelay
		}
		if delay < minDelay {
			delay = minDelay
		}
		return delay
	}
}

// RetryOnRateLimit is the Retryable predicate used for page fetches
func RetryOnRateLimit(err error) bool {
	return !utils.IsFatalFetchError(err)
}

// Do runs op until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// Exhaustion returns ErrRetryFailed wrapping the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			var delay time.Duration
			if p.Backoff != nil {
				delay = p.Backoff(attempt - 1)
			}
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, lastErr)
			}
			if err := sleepContext(ctx, delay); err != nil {
				return fmt.Errorf("%w: during retry delay after error: %w", err, lastErr)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %d attempts: %w", utils.ErrRetryFailed, maxAttempts, lastErr)
}

// sleepContext waits for d, returning early with the context error if ctx ends first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
