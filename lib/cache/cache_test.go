package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/lib/db"
)

func cachedRecord(payload string) db.Record {
	now := time.Now()
	return db.Record{
		Payload: []byte(payload),
		Meta: db.Metadata{
			OriginalSize:   len(payload),
			Size:           len(payload),
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
			LastAccessedAt: now,
		},
	}
}

func TestCacheGetPut(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Put("a", cachedRecord("payload-a"))

	rec, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload-a"), rec.Payload)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.001)
}

func TestCacheCopyDiscipline(t *testing.T) {
	c := New()

	original := cachedRecord("immutable")
	c.Put("key", original)

	// mutating the record that was put must not affect the cache
	original.Payload[0] = 'X'

	rec, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("immutable"), rec.Payload)

	// mutating a returned record must not affect the cache either
	rec.Payload[0] = 'Y'

	again, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("immutable"), again.Payload)
}

func TestCacheInvalidate(t *testing.T) {
	c := New()

	c.Put("a", cachedRecord("payload"))
	require.Equal(t, 1, c.Len())

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())

	// invalidating a missing key is a no-op and must not create an entry
	c.Invalidate("never-existed")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())
}

func TestCacheBytesAccounting(t *testing.T) {
	c := New()

	c.Put("a", cachedRecord("1234"))
	c.Put("b", cachedRecord("12345678"))
	assert.Equal(t, int64(12), c.Bytes())

	// overwriting adjusts by the delta
	c.Put("a", cachedRecord("1234567890"))
	assert.Equal(t, int64(18), c.Bytes())

	c.Invalidate("b")
	assert.Equal(t, int64(10), c.Bytes())

	c.Invalidate("a")
	assert.Equal(t, int64(0), c.Bytes())
}

func TestCacheClear(t *testing.T) {
	c := New()

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("key-%d", i), cachedRecord("payload"))
	}
	require.Equal(t, 10, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Bytes())

	_, ok := c.Get("key-0")
	assert.False(t, ok)
}

func TestCacheEvictIfOverBudget(t *testing.T) {
	c := New()

	// controlled clock so scores are deterministic
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	// eight entries of 100 bytes each
	payload := make([]byte, 100)
	for i := 0; i < 8; i++ {
		c.Put(fmt.Sprintf("key-%d", i), db.Record{Payload: payload})
	}

	// access the first four, so the last four keep score zero
	current = base.Add(10 * time.Second)
	for i := 0; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
	}

	// 800 bytes cached against a 500 byte budget: evict a quarter
	current = base.Add(20 * time.Second)
	evicted := c.EvictIfOverBudget(500)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 6, c.Len())
	assert.Equal(t, int64(600), c.Bytes())

	// the accessed entries all survive, the zero-score ones go first
	misses := c.Stats().Misses
	for i := 0; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "accessed entry key-%d was evicted", i)
	}
	assert.Equal(t, misses, c.Stats().Misses)

	assert.Equal(t, uint64(2), c.Stats().Evictions)
}

func TestCacheEvictionUnderBudgetIsNoop(t *testing.T) {
	c := New()

	c.Put("a", cachedRecord("small"))

	assert.Equal(t, 0, c.EvictIfOverBudget(1024))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions)

	// a zero or negative budget disables eviction
	assert.Equal(t, 0, c.EvictIfOverBudget(0))
	assert.Equal(t, 0, c.EvictIfOverBudget(-1))
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictionScoreOrdering(t *testing.T) {
	c := New()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	payload := make([]byte, 100)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("key-%d", i), db.Record{Payload: payload})
	}

	// equal access counts, staggered access times
	for i := 0; i < 4; i++ {
		current = base.Add(time.Duration(i+1) * time.Minute)
		_, ok := c.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
	}

	current = base.Add(10 * time.Minute)
	evicted := c.EvictIfOverBudget(100)
	require.Equal(t, 1, evicted)

	// with equal counts the smallest age yields the lowest score, so the
	// most recently touched entry goes first
	_, ok := c.Get("key-3")
	assert.False(t, ok, "lowest-scoring entry key-3 should have been evicted")
	_, ok = c.Get("key-0")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()

	const workers = 8
	const opsPerWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("key-%d", i%50)
				switch i % 3 {
				case 0:
					c.Put(key, cachedRecord(fmt.Sprintf("payload-%d-%d", worker, i)))
				case 1:
					c.Get(key)
				default:
					c.Invalidate(key)
				}
			}
		}(w)
	}
	wg.Wait()

	// accounting must still be consistent with the surviving entries
	var want int64
	count := 0
	c.entries.Range(func(_ string, e *entry) bool {
		want += int64(len(e.rec.Payload))
		count++
		return true
	})
	assert.Equal(t, want, c.Bytes())
	assert.Equal(t, count, c.Len())
}
