// Package cache implements an in-memory read cache for encoded records.
//
// The cache sits between the engine facade and the primary store and keeps
// recently used records available without a store lookup. It is strictly a
// performance layer: the engine must produce identical results with the
// cache disabled, and eviction never removes data from the primary store.
//
// The package focuses on:
//
//   - Concurrent Access: entries live in a lock-free concurrent map and
//     per-entry counters are updated atomically, so hits never block each
//     other
//   - Scored Eviction: when the cached payload bytes exceed a budget, the
//     lowest-scoring quarter of entries is dropped, scored by access count
//     multiplied by the time since the last access
//   - Accounting: hit, miss and eviction counters plus aggregate payload
//     bytes are maintained for the engine statistics
//
// Key Components:
//
//   - Cache: the cache itself with Get, Put, Invalidate, Clear and
//     EvictIfOverBudget
//   - Stats: a point-in-time snapshot of the counters
package cache
