// Package wal implements a bounded in-memory write-ahead log of mutation
// intents.
//
// Every mutating engine operation appends an entry before the mutation is
// applied to the primary store, so the recent write history is always
// observable and can be handed to a durable sink. The log is not a
// recovery mechanism for the in-memory engine: nothing replays it on
// startup, and its retention is a policy, not a durability guarantee.
//
// The package focuses on:
//
//   - Intent Logging: a single-writer append path assigns dense,
//     monotonically increasing entry ids and checksums every entry
//   - Bounded Growth: entries are pruned once they age out of the
//     retention window or push the ring past its entry cap
//   - Sink Integration: an optional Sink receives every entry through a
//     lock-free queue; pruning never drops an entry the sink has not
//     consumed, tracked through a consumed-id watermark
//   - Reproducibility: entries serialize to a deterministic big-endian
//     wire form that can be dumped and decoded elsewhere
//
// Key Components:
//
//   - Entry: one logged mutation with id, operation, key, value bytes,
//     timestamp and checksum
//   - Log: the ring itself with Append, Prune, Entries, Dump and Stats
//   - Sink: the consumer interface for durable integrations
package wal
