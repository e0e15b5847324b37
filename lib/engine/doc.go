// Package engine provides the storage facade tying every subsystem
// together: value serialization, compression, encryption, caching, field
// indexing, write-ahead intent logging, retries, resource governance, and
// health monitoring behind one concurrency-safe API.
//
// The package focuses on:
// - A small, context-aware API for storing and querying JSON-like values
// - Graceful degradation: reads degrade to misses on transient failures
//   while writes surface errors after the retries are exhausted
// - Per-key write serialization with dense, strictly increasing versions
// - Background upkeep (index GC, resource sampling, health self-tests)
//   that never blocks a caller
//
// Key Components:
// - Engine: the facade, created by New from a Config
// - Config: validated configuration with sensible defaults
// - SetOptions/WriteResult/DeleteResult/KeysOptions: per-call options and
//   operation outcomes
// - Stats/HealthStatus: introspection snapshots
//
// Usage:
//
//	cfg := engine.DefaultConfig()
//	e, err := engine.New(cfg)
//	if err != nil {
//		...
//	}
//	defer e.Close()
//
//	_, err = e.Set(ctx, "user:1", map[string]interface{}{
//		"name": "Ada", "role": "admin",
//	}, nil)
//	value, err := e.Get(ctx, "user:1")
//	admins, err := e.Query(ctx, map[string]interface{}{"role": "admin"})
package engine
