// Package util provides utility components for
// database implementations that satisfy the db.RecordDB interface.
//
// The package contains:
//   - statistics: Utility tools for analyzing database characteristics and a bucketed Histogram for tracking payload size distributions
//   - functions: Hash functions and other utility functions
//   - scoreheap: A priority queue over keyed scores that also supports key-based access, used for cache eviction ordering
//   - glob: Glob pattern translation to anchored regular expressions with an LRU cache of compiled patterns
//
// This package is particularly useful for:
//   - Database developers implementing the RecordDB interface
//   - Implementation of eviction or other priority queue systems
//   - Monitoring systems that need to track database size metrics
//
// Each component is designed to work with any implementation of the db.RecordDB interface,
// allowing for consistent validation and measurement across different storage backends.
package util
