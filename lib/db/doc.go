// Package db provides a standardized interface for record database implementations.
// It defines the RecordDB interface that allows for consistent interaction with
// various storage backends while abstracting implementation details, plus the
// shared record model and error taxonomy used across the engine.
//
// The package focuses on:
//   - A unified interface for record operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - A shared record model with processing and lifecycle metadata
//   - A typed error taxonomy with errors.Is/As support
//
// Key Components:
//
//   - RecordDB Interface: The core interface that all database implementations
//     must satisfy. It provides methods for basic operations (Put, Get, Remove,
//     Contains), scan operations (ScanKeys, ForEach), access bookkeeping (Touch),
//     metadata retrieval (GetInfo), and persistence operations (Save, Load).
//
//   - Record Model: A Record couples the processed payload bytes with Metadata
//     describing how the payload was produced (original size, compression tier,
//     encryption flag, checksum) and its lifecycle (created/updated timestamps,
//     per-key version, access statistics). Records are handed out as copies;
//     implementations never share payload buffers with callers.
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations can advertise through the SupportsFeature method. This
//     allows clients to discover supported operations at runtime, for example
//     whether a backend supports binary snapshots (FeatureSnapshot) or survives
//     restarts (FeatureDurable).
//
//   - Error Taxonomy: The Error type pairs an ErrCode with a message and an
//     optional cause. Codes distinguish caller mistakes (InvalidKey), data
//     damage (CorruptRecord, Decryption), temporary backend failures
//     (TransientStorage, the only retryable class), and everything else
//     (Internal). Sentinel values support errors.Is matching by code.
//
// This interface-driven approach allows applications to:
//   - Swap storage backends without code changes
//   - Gracefully handle operations not supported by specific implementations
//   - Maintain consistent behavior across different storage backends
//
// Related Packages:
//
// The engines/linden package (github.com/arbordb/arbor/lib/db/engines/linden)
// provides the default in-memory implementation using a sharded architecture
// with per-shard concurrent maps and binary snapshot support.
//
// The engines/cedar package (github.com/arbordb/arbor/lib/db/engines/cedar)
// provides a durable implementation backed by SQLite for deployments that need
// state to survive restarts.
//
// The testing package (github.com/arbordb/arbor/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the RecordDB
// interface:
//   - RunRecordDBTests: Runs a standardized test suite to validate implementations
//   - RunRecordDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
