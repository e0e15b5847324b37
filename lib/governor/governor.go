package governor

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbordb/arbor/lib/logger"
)

var log = logger.GetLogger("governor")

const (
	// DefaultCacheFraction of the memory budget is granted to the cache
	DefaultCacheFraction = 0.30

	// LowMemoryCacheFraction replaces it while memory pressure is high
	LowMemoryCacheFraction = 0.20

	// PressureThreshold is the memory pressure above which low memory
	// mode engages
	PressureThreshold = 0.8

	// DefaultBatchSize is the batch size hint for queued work
	DefaultBatchSize = 64

	// LowMemoryBatchSize replaces it while memory pressure is high
	LowMemoryBatchSize = 16

	// DefaultInterval between environment samples
	DefaultInterval = 30 * time.Second
)

// --------------------------------------------------------------------------
// Resource State
// --------------------------------------------------------------------------

// NetworkQuality classifies the host's network connectivity
type NetworkQuality uint8

const (
	NetworkGood NetworkQuality = iota
	NetworkDegraded
	NetworkPoor
)

func (q NetworkQuality) String() string {
	switch q {
	case NetworkGood:
		return "good"
	case NetworkDegraded:
		return "degraded"
	case NetworkPoor:
		return "poor"
	default:
		return fmt.Sprintf("Unknown(%d)", q)
	}
}

// ResourceState is one observation of the host environment
type ResourceState struct {
	// MemoryPressure is the used fraction of the memory budget, 0 to 1
	MemoryPressure float64

	// NetworkQuality classifies the current connectivity
	NetworkQuality NetworkQuality

	// BatteryConstrained reports whether the host runs on constrained power
	BatteryConstrained bool
}

// --------------------------------------------------------------------------
// Samplers
// --------------------------------------------------------------------------

// Sampler produces resource observations
type Sampler interface {
	Sample() ResourceState
}

// SamplerFunc adapts a plain function to the Sampler interface
type SamplerFunc func() ResourceState

func (f SamplerFunc) Sample() ResourceState { return f() }

// MemorySampler derives memory pressure from a usage probe measured
// against a byte budget. Network quality and battery state always read as
// unconstrained; hosts with real signals for those provide their own
// Sampler instead.
type MemorySampler struct {
	// Usage reports the bytes currently in use
	Usage func() int64

	// Budget is the configured memory budget in bytes
	Budget int64
}

func (s *MemorySampler) Sample() ResourceState {
	var pressure float64
	if s.Usage != nil && s.Budget > 0 {
		pressure = float64(s.Usage()) / float64(s.Budget)
		if pressure < 0 {
			pressure = 0
		}
		if pressure > 1 {
			pressure = 1
		}
	}
	return ResourceState{MemoryPressure: pressure, NetworkQuality: NetworkGood}
}

// --------------------------------------------------------------------------
// Policy
// --------------------------------------------------------------------------

// Policy is the advisory tuning derived from a resource state. It biases
// cache sizing and codec behavior but never blocks an operation.
type Policy struct {
	// CacheFraction of the memory budget granted to the cache
	CacheFraction float64

	// ForceCompression compresses every payload regardless of size
	ForceCompression bool

	// PreferHighRatio biases the codec toward slower, denser compression
	PreferHighRatio bool

	// BatchSize hint for queued work
	BatchSize int
}

// DefaultPolicy is the policy in effect before the first sample
func DefaultPolicy() Policy {
	return Policy{
		CacheFraction: DefaultCacheFraction,
		BatchSize:     DefaultBatchSize,
	}
}

// Apply derives the policy for an observed resource state
func Apply(state ResourceState) Policy {
	p := DefaultPolicy()

	// low memory mode: shrink the cache, compress everything, smaller batches
	if state.MemoryPressure > PressureThreshold {
		p.CacheFraction = LowMemoryCacheFraction
		p.ForceCompression = true
		p.BatchSize = LowMemoryBatchSize
	}

	// constrained transport or power trades CPU for bytes
	if state.NetworkQuality != NetworkGood || state.BatteryConstrained {
		p.PreferHighRatio = true
	}

	return p
}

// --------------------------------------------------------------------------
// Governor
// --------------------------------------------------------------------------

// Governor periodically samples the host environment and publishes the
// derived policy atomically, so readers on the hot path never take a lock.
type Governor struct {
	sampler  Sampler
	interval time.Duration

	policy atomic.Pointer[Policy]
	state  atomic.Pointer[ResourceState]

	transitions atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a governor around the sampler. A nil sampler pins the
// default policy. The interval applies to the background loop, a
// non-positive value selects the default.
func New(sampler Sampler, interval time.Duration) *Governor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	g := &Governor{
		sampler:  sampler,
		interval: interval,
		stop:     make(chan struct{}),
	}

	policy := DefaultPolicy()
	g.policy.Store(&policy)
	g.state.Store(&ResourceState{})

	return g
}

// Policy returns the currently published policy.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *Governor) Policy() Policy {
	return *g.policy.Load()
}

// State returns the most recent resource observation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *Governor) State() ResourceState {
	return *g.state.Load()
}

// Transitions returns how often the published policy has changed.
func (g *Governor) Transitions() uint64 {
	return g.transitions.Load()
}

// Refresh samples the environment once, publishes the derived policy and
// returns it. Policy transitions are logged.
//
// Thread-safety: This method is thread-safe, concurrent refreshes publish
// in last-write-wins order.
func (g *Governor) Refresh() Policy {
	if g.sampler == nil {
		return g.Policy()
	}

	state := g.sampler.Sample()
	next := Apply(state)
	prev := *g.policy.Load()

	g.state.Store(&state)
	g.policy.Store(&next)

	if next != prev {
		g.transitions.Add(1)
		log.WithFields(logrus.Fields{
			"memoryPressure":   fmt.Sprintf("%.2f", state.MemoryPressure),
			"networkQuality":   state.NetworkQuality.String(),
			"battery":          state.BatteryConstrained,
			"cacheFraction":    next.CacheFraction,
			"forceCompression": next.ForceCompression,
			"batchSize":        next.BatchSize,
		}).Info("resource policy changed")
	}

	return next
}

// Start launches the background sampling loop. It runs until Stop is
// called.
func (g *Governor) Start() {
	go g.run()
}

func (g *Governor) run() {
	for {
		// +/- 20% jitter to decorrelate periodic work
		interval := g.interval + time.Duration((rand.Float64()-0.5)*0.4*float64(g.interval))

		select {
		case <-g.stop:
			return
		case <-time.After(interval):
			g.Refresh()
		}
	}
}

// Stop halts the background loop. It is safe to call multiple times and
// also when Start was never called.
func (g *Governor) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}
