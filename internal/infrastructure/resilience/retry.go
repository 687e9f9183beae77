package resilience

import (
	"context"
	"time"
)

// Backoff returns the delay before the given retry attempt (0-based):
// base × 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Retry runs op up to maxRetries+1 times with exponential backoff between
// attempts. It returns nil on the first success, the last error if all
// attempts fail, or the context error if the context is cancelled while
// waiting.
func Retry(ctx context.Context, maxRetries int, base time.Duration, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(Backoff(base, attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
	}
	return err
}
