// Package health monitors a running engine and surfaces its condition.
//
// The monitor accounts every public operation (counts, durations,
// failures), keeps a bounded log of recent errors, and periodically
// verifies the engine end to end: it writes a synthetic key in a reserved
// namespace, reads it back, compares the value and deletes it again. The
// verdict combines that round trip with two thresholds, the aggregate
// error rate and the cache hit ratio.
//
// Health is an observation layer. A failing self-test or a breached
// threshold flags the engine unhealthy for callers to surface, it never
// stops or degrades the engine itself.
//
// Key Components:
//
//   - Monitor: the per-engine collector with RecordOp, RunSelfTest and
//     the jittered periodic loop
//   - Target: the minimal operation surface the self-test probes
//   - SelfTestResult: one evaluation with its issue list
//
// Metrics are kept twice: a Prometheus-exportable set with per-operation
// counters and duration summaries, and moving-average meters feeding the
// per-second rates in Stats.
package health
