package retry

import (
	"context"
	"time"
)

type shouldRetry func(err error, attempt int) bool

// Do runs f until it succeeds, shouldRetry declines, or ctx is cancelled.
// The delay doubles per attempt up to maxDelay.
func Do(ctx context.Context, f func() error, should shouldRetry, delay, maxDelay time.Duration) error {
	attempt := 0

	for {
		err := f()
		if err == nil {
			return nil
		}

		attempt++
		if !should(err, attempt) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Always retries every error.
func Always(error, int) bool { return true }
