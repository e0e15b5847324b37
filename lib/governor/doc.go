// Package governor adapts engine behavior to the resources of the host.
//
// A sampler observes the environment (memory pressure against the
// configured budget, network quality, power state) and the governor
// derives an advisory policy from each observation: how much of the
// memory budget the cache may use, whether payloads should always be
// compressed, whether the codec should prefer denser but slower
// compression, and how large queued work batches should be.
//
// Policies are published atomically so hot-path readers never take a
// lock, and they are strictly advisory: a policy biases cache and codec
// decisions but never blocks or fails an operation.
//
// Key Components:
//
//   - ResourceState: one observation of memory, network and power
//   - Sampler: the observation source, with MemorySampler as the default
//     implementation measuring a usage probe against a byte budget
//   - Policy: the derived tuning values, Apply maps state to policy
//   - Governor: publishes policies, either on demand through Refresh or
//     periodically through the jittered background loop
package governor
