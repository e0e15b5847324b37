package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/arbordb/arbor/lib/db"
)

// withRetry runs op and retries transient failures with exponential
// backoff. Non-transient errors (invalid keys, corruption, decryption)
// return immediately. The context is checked before every attempt and
// honored during backoff sleeps; after the attempts are exhausted the
// last error is returned.
func (e *Engine) withRetry(ctx context.Context, name string, op func() error) error {
	attempts := e.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := e.cfg.RetryDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !db.IsTransient(lastErr) {
			return lastErr
		}

		log.Debugf("%s attempt %d/%d failed: %v", name, attempt+1, attempts, lastErr)

		if attempt < attempts-1 && delay > 0 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := time.Duration(float64(delay) * (0.9 + 0.2*rand.Float64()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}
			delay *= 2
		}
	}

	return lastErr
}
