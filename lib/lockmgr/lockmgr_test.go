package lockmgr

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestSameKeySerializes verifies mutual exclusion per key
func TestSameKeySerializes(t *testing.T) {
	locker := NewKeyLocker(0)

	const workers = 16
	const increments = 500

	counter := 0
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				locker.Lock("shared")
				counter++
				locker.Unlock("shared")
			}
		}()
	}
	wg.Wait()

	if counter != workers*increments {
		t.Errorf("counter = %d, want %d", counter, workers*increments)
	}
}

// TestDistinctStripesDoNotBlock verifies cross-key parallelism
func TestDistinctStripesDoNotBlock(t *testing.T) {
	impl := NewKeyLocker(64).(*stripedLocker)

	// find two keys that land on different stripes
	first := "key-0"
	second := ""
	for i := 1; i < 1000; i++ {
		candidate := fmt.Sprintf("key-%d", i)
		if impl.stripeFor(candidate) != impl.stripeFor(first) {
			second = candidate
			break
		}
	}
	if second == "" {
		t.Fatal("no key pair on distinct stripes found")
	}

	impl.Lock(first)
	defer impl.Unlock(first)

	acquired := make(chan struct{})
	go func() {
		impl.Lock(second)
		impl.Unlock(second)
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Error("lock on a different stripe should not block")
	}
}

// TestStripeSizing verifies the power-of-two rounding and defaults
func TestStripeSizing(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{requested: 0, expected: defaultStripes},
		{requested: -5, expected: defaultStripes},
		{requested: 1, expected: 1},
		{requested: 64, expected: 64},
		{requested: 100, expected: 128},
		{requested: 129, expected: 256},
	}

	for _, tt := range tests {
		impl := NewKeyLocker(tt.requested).(*stripedLocker)
		if got := len(impl.stripes); got != tt.expected {
			t.Errorf("NewKeyLocker(%d) has %d stripes, want %d", tt.requested, got, tt.expected)
		}
	}
}

// TestLockCycle verifies a lock can be re-acquired after release
func TestLockCycle(t *testing.T) {
	locker := NewKeyLocker(8)

	for i := 0; i < 100; i++ {
		locker.Lock("cycle")
		locker.Unlock("cycle")
	}
}

func BenchmarkLockUnlock(b *testing.B) {
	locker := NewKeyLocker(128)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", i%1024)
			locker.Lock(key)
			locker.Unlock(key)
			i++
		}
	})
}
