package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arbordb/arbor/lib/db"
)

// retryEngine builds the minimal engine state withRetry needs.
func retryEngine(attempts int, delay time.Duration) *Engine {
	return &Engine{cfg: Config{RetryAttempts: attempts, RetryDelay: delay}}
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	e := retryEngine(3, time.Millisecond)

	calls := 0
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1", calls)
	}
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	e := retryEngine(3, time.Millisecond)

	calls := 0
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return db.NewError(db.ErrCTransientStorage, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() = %v, want nil after recovery", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	e := retryEngine(3, time.Millisecond)

	calls := 0
	transient := db.NewError(db.ErrCTransientStorage, "still flaky")
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		return transient
	})
	if !errors.Is(err, db.ErrTransientStorage) {
		t.Fatalf("withRetry() = %v, want the transient error", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestWithRetryStopsOnNonTransientError(t *testing.T) {
	e := retryEngine(5, time.Millisecond)

	calls := 0
	err := e.withRetry(context.Background(), "op", func() error {
		calls++
		return db.NewError(db.ErrCCorruptRecord, "bad checksum")
	})
	if db.CodeOf(err) != db.ErrCCorruptRecord {
		t.Fatalf("withRetry() code = %v, want ErrCCorruptRecord", db.CodeOf(err))
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1 for a non-transient error", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	e := retryEngine(10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.withRetry(ctx, "op", func() error {
			calls++
			if calls == 1 {
				cancel()
			}
			return db.NewError(db.ErrCTransientStorage, "flaky")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("withRetry() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("withRetry did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1 before cancellation took effect", calls)
	}
}

func TestWithRetryCancelledBeforeFirstAttempt(t *testing.T) {
	e := retryEngine(3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.withRetry(ctx, "op", func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("withRetry() = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("op ran %d times, want 0 with a cancelled context", calls)
	}
}
