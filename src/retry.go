package ebookbot

import (
	"context"
	"log/slog"
	"time"
)

// retry calls fn until it succeeds, returns an error retryable rejects, or
// has been called attempts times. It returns the number of calls made.
func retry(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool,
	logger *slog.Logger, fn func(ctx context.Context) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return i, nil
		}
		if i == attempts || !retryable(err) {
			return i, err
		}
		logger.Warn("attempt failed, retrying", "attempt", i, "max_attempts", attempts, "err", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return i, ctx.Err()
		case <-t.C:
		}
	}
	return attempts, err
}

func always(error) bool { return true }
