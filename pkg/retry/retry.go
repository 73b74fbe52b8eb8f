// Package retry provides a bounded retry combinator for transient failures.
package retry

import (
	"context"
	"time"
)

// Retryable reports whether an error belongs to the transient class that
// deserves another attempt. A nil predicate retries nothing.
type Retryable func(error) bool

// Do runs op up to attempts guarded times, sleeping cooldown between
// attempts that fail with a retryable error. After the guarded attempts are
// exhausted it runs op one final time and returns whatever that attempt
// returns, so the total attempt count is attempts+1 and the last error is
// never swallowed. Non-retryable errors are returned immediately.
func Do(ctx context.Context, attempts int, cooldown time.Duration, retryable Retryable, op func() error) error {
	for i := 0; i < attempts; i++ {
		err := op()
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if err := sleep(ctx, cooldown); err != nil {
			return err
		}
	}
	return op()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
