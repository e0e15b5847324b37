// Package cedar implements a durable record database (RecordDB) backed by
// SQLite. It is the storage backend to choose when records must survive a
// process restart without snapshot management.
//
// The package focuses on:
//   - Durability through an embedded SQLite database in WAL mode
//   - Full metadata fidelity: every metadata field is a typed column, with
//     timestamps stored as Unix nanoseconds
//   - Scan semantics identical to the in-memory backend by evaluating glob
//     patterns in Go rather than SQL LIKE
//
// All write and read failures surface as transient storage errors so that
// callers can apply their retry policy. Save and Load are deliberately
// unsupported: the backing file is the persistence mechanism, and reporting
// an unsupported operation keeps callers from maintaining redundant
// snapshots.
//
// The connection pool is capped at a single connection because SQLite
// serializes writers anyway and in-memory databases otherwise get one
// schema per pooled connection.
package cedar
