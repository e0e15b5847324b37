package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arbordb/arbor/lib/db"
	"github.com/arbordb/arbor/lib/db/util"
)

// --------------------------------------------------------------------------
// Cache Entry
// --------------------------------------------------------------------------

// entry is one cached record with its own access bookkeeping.
// The record is immutable after insertion, the counters are updated
// atomically on every hit.
type entry struct {
	rec          db.Record
	accessCount  atomic.Uint64
	lastAccessed atomic.Int64 // Unix nanoseconds
}

// --------------------------------------------------------------------------
// Cache
// --------------------------------------------------------------------------

// Cache is a read-through record cache in front of the primary store.
// It is a pure performance layer: it never writes to the store, and all
// results must be identical with the cache removed entirely.
type Cache struct {
	entries *xsync.MapOf[string, *entry]
	bytes   atomic.Int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	evictMu sync.Mutex // one eviction pass at a time

	now func() time.Time
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: xsync.NewMapOf[string, *entry](),
		now:     time.Now,
	}
}

// Get returns the cached record for the key if present.
// A hit updates the entry's access bookkeeping. The returned record is a
// copy of the cached data and therefore safe to use and modify.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Get(key string) (db.Record, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return db.Record{}, false
	}

	e.accessCount.Add(1)
	e.lastAccessed.Store(c.now().UnixNano())
	c.hits.Add(1)

	return e.rec.Clone(), true
}

// Put inserts or replaces the cached record for the key.
// The record is copied on insert, the caller keeps ownership of its buffers.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Put(key string, rec db.Record) {
	e := &entry{rec: rec.Clone()}
	e.lastAccessed.Store(c.now().UnixNano())

	var delta int64
	c.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		delta = int64(len(e.rec.Payload))
		if loaded {
			delta -= int64(len(old.rec.Payload))
		}
		return e, false
	})
	c.bytes.Add(delta)
}

// Invalidate drops the cached record for the key, if any.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Invalidate(key string) {
	var freed int64
	c.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		freed = int64(len(old.rec.Payload))
		return old, true
	})
	c.bytes.Add(-freed)
}

// Clear drops all cached records.
//
// Thread-safe: This method is safe for concurrent use, though byte
// accounting can drift if writers run during the clear.
func (c *Cache) Clear() {
	c.entries.Clear()
	c.bytes.Store(0)
}

// Len returns the number of cached records.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Bytes returns the aggregate size of all cached payloads.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Bytes() int64 {
	return c.bytes.Load()
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// EvictIfOverBudget evicts the lowest-scoring quarter of the cached entries
// when the aggregate cached payload size exceeds the budget, and returns the
// number of evicted entries. Entries are scored accessCount * seconds since
// the last access and evicted in ascending score order.
//
// Eviction only drops cache entries; the primary store is never touched.
//
// Thread-safe: This method is safe for concurrent use. Concurrent calls
// serialize so only one scoring pass runs at a time.
func (c *Cache) EvictIfOverBudget(budget int64) int {
	if budget <= 0 || c.bytes.Load() <= budget {
		return 0
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	// re-check under the lock, a concurrent pass may have freed enough
	if c.bytes.Load() <= budget {
		return 0
	}

	now := c.now()

	// score all entries, lowest score evicts first
	scores := util.NewScoreHeap()
	total := 0
	c.entries.Range(func(key string, e *entry) bool {
		age := now.Sub(time.Unix(0, e.lastAccessed.Load())).Seconds()
		if age < 0 {
			age = 0
		}
		scores.AddItem(key, float64(e.accessCount.Load())*age)
		total++
		return true
	})

	target := total / 4
	if target < 1 {
		target = 1
	}

	evicted := 0
	for evicted < target {
		key, _, ok := scores.PopMin()
		if !ok {
			break
		}
		c.Invalidate(key)
		evicted++
	}

	c.evictions.Add(uint64(evicted))
	return evicted
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot of the cache counters
type Stats struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
	Entries      int     `json:"entries"`
	PayloadBytes int64   `json:"payload_bytes"`
	HitRatio     float64 `json:"hit_ratio"`
}

// Stats returns a snapshot of the cache counters.
//
// Thread-safe: This method is safe for concurrent use
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Hits:         hits,
		Misses:       misses,
		Evictions:    c.evictions.Load(),
		Entries:      c.Len(),
		PayloadBytes: c.Bytes(),
		HitRatio:     ratio,
	}
}
