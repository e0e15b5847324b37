// Package index implements a secondary index over the top-level scalar
// fields of stored objects.
//
// For every stored object value the index records which keys carry which
// field values, so equality-filtered queries can intersect small key-sets
// instead of scanning the whole store. Only top-level string and number
// fields participate; nested objects, arrays, booleans and null are never
// indexed and must be verified against the materialized value by the
// caller.
//
// The package focuses on:
//
//   - Equality Lookups: FindByField and QueryKeys resolve field-value
//     filters to candidate key sets via set intersection
//   - Write Tracking: OnWrite and Remove keep the postings in step with
//     the primary store, including dropping stale postings on overwrites
//   - Lazy Cleanup: emptied key-sets and field maps linger until GC
//     prunes them, either on demand or through a background loop
//
// The index is an acceleration structure, never a source of truth: a key
// listed in a posting is guaranteed to exist in the primary store with
// that field value, and queries materialize results through the store.
package index
