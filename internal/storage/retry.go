package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

const DefaultMaxAttempts = 10

// RetryOnConflict runs fn until it returns something other than a version
// conflict, sleeping with jittered exponential backoff in between. Each
// conflict means another writer committed since fn read, so with N
// concurrent writers N attempts are always enough.
func RetryOnConflict(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	backoff := 2 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
