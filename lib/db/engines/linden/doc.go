// Package linden implements the in-memory record database (RecordDB) used as
// the default storage backend. It provides a complete implementation of the
// db.RecordDB interface with a focus on thread safety, performance, and
// memory efficiency.
//
// The package focuses on:
//   - Optimized concurrent access through sharding and lock-free data structures
//   - Strict copy semantics so callers never share payload buffers with the store
//   - Glob-style key scanning with cached pattern compilation
//   - Persistent snapshots with efficient binary encoding
//   - Statistics for monitoring via sampled histograms and shard distribution
//
// Key Components:
//
//   - lindenImpl: The central database structure implementing db.RecordDB. It
//     manages shards and provides the public API for record operations. All
//     metadata interpretation (versioning, compression, encryption) is left to
//     the caller; linden stores records verbatim and only maintains the access
//     bookkeeping requested via Touch.
//
//   - Shard: A partition of the database that manages a subset of the key
//     space. Each shard contains its own concurrent map and payload byte
//     counter. Shards operate independently to minimize contention. Keys are
//     assigned to shards using a seeded hash to ensure even distribution.
//
// Internal Mechanisms:
//
//   - Sharding Strategy: String keys are hashed with a database-specific seed,
//     then the hash is right-shifted by 7 bits to use higher-quality bits for
//     shard selection. Within a shard, the concurrent map applies its own
//     internal hashing.
//
//   - Copy Discipline: Put clones the incoming record, Get and ForEach hand
//     out clones of the stored record. Payload buffers inside the store are
//     therefore never written after insertion, which makes lock-free reads
//     safe.
//
//   - Byte Accounting: Each shard tracks the sum of its payload sizes in an
//     atomic counter, updated through the same atomic map operation that
//     changes the data. PayloadBytes aggregates the per-shard counters and is
//     used by callers for memory budget decisions.
//
//   - Persistence Format: Snapshots use a compact binary format: a magic
//     number ("LINDENDB"), a version byte, the database seed, the entry count,
//     and then one length-prefixed key, the metadata fields, and the
//     length-prefixed payload per entry. Snapshots are fuzzy: concurrent
//     writes during Save may or may not be included, and Load expects
//     exclusive access.
//
// The linden package is designed to serve as the storage layer beneath a
// caching and indexing facade, which is why it deliberately has no opinion
// about what the payload bytes mean.
package linden
