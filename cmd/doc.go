// Package cmd implements the command-line interface for the arbor
// embedded storage engine. It provides a hierarchical command structure
// for exercising and benchmarking an in-process engine instance.
//
// The package is organized into several subpackages:
//
//   - smoke: A full lifecycle walkthrough against a fresh engine
//   - bench: Benchmarks for the engine operations
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See arbor -help for a list of all commands.
package cmd
