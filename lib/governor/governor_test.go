package governor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPolicy(t *testing.T) {
	tests := []struct {
		name     string
		state    ResourceState
		expected Policy
	}{
		{
			name:  "Unconstrained host",
			state: ResourceState{MemoryPressure: 0.5},
			expected: Policy{
				CacheFraction: DefaultCacheFraction,
				BatchSize:     DefaultBatchSize,
			},
		},
		{
			name:  "Pressure exactly at the threshold stays normal",
			state: ResourceState{MemoryPressure: PressureThreshold},
			expected: Policy{
				CacheFraction: DefaultCacheFraction,
				BatchSize:     DefaultBatchSize,
			},
		},
		{
			name:  "High memory pressure",
			state: ResourceState{MemoryPressure: 0.85},
			expected: Policy{
				CacheFraction:    LowMemoryCacheFraction,
				ForceCompression: true,
				BatchSize:        LowMemoryBatchSize,
			},
		},
		{
			name:  "Degraded network biases compression",
			state: ResourceState{NetworkQuality: NetworkDegraded},
			expected: Policy{
				CacheFraction:   DefaultCacheFraction,
				PreferHighRatio: true,
				BatchSize:       DefaultBatchSize,
			},
		},
		{
			name:  "Battery constrained biases compression",
			state: ResourceState{BatteryConstrained: true},
			expected: Policy{
				CacheFraction:   DefaultCacheFraction,
				PreferHighRatio: true,
				BatchSize:       DefaultBatchSize,
			},
		},
		{
			name: "Everything constrained",
			state: ResourceState{
				MemoryPressure:     0.95,
				NetworkQuality:     NetworkPoor,
				BatteryConstrained: true,
			},
			expected: Policy{
				CacheFraction:    LowMemoryCacheFraction,
				ForceCompression: true,
				PreferHighRatio:  true,
				BatchSize:        LowMemoryBatchSize,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Apply(tt.state))
		})
	}
}

func TestMemorySampler(t *testing.T) {
	usage := int64(0)
	s := &MemorySampler{
		Usage:  func() int64 { return usage },
		Budget: 1000,
	}

	assert.Equal(t, 0.0, s.Sample().MemoryPressure)

	usage = 500
	assert.InDelta(t, 0.5, s.Sample().MemoryPressure, 0.001)

	// pressure is clamped to the unit interval
	usage = 5000
	assert.Equal(t, 1.0, s.Sample().MemoryPressure)

	// a sampler without a probe or budget reads as unpressured
	assert.Equal(t, 0.0, (&MemorySampler{Budget: 1000}).Sample().MemoryPressure)
	assert.Equal(t, 0.0, (&MemorySampler{Usage: func() int64 { return 9 }}).Sample().MemoryPressure)

	assert.Equal(t, NetworkGood, s.Sample().NetworkQuality)
	assert.False(t, s.Sample().BatteryConstrained)
}

func TestGovernorRefresh(t *testing.T) {
	state := ResourceState{MemoryPressure: 0.2}
	g := New(SamplerFunc(func() ResourceState { return state }), 0)
	defer g.Stop()

	// before the first refresh the default policy is published
	assert.Equal(t, DefaultPolicy(), g.Policy())

	p := g.Refresh()
	assert.Equal(t, DefaultCacheFraction, p.CacheFraction)
	assert.Equal(t, state, g.State())
	assert.Equal(t, uint64(0), g.Transitions())

	// crossing the threshold transitions the policy
	state = ResourceState{MemoryPressure: 0.9}
	p = g.Refresh()
	assert.Equal(t, LowMemoryCacheFraction, p.CacheFraction)
	assert.True(t, p.ForceCompression)
	assert.Equal(t, uint64(1), g.Transitions())

	// an unchanged state does not count as a transition
	g.Refresh()
	assert.Equal(t, uint64(1), g.Transitions())

	// recovering transitions back
	state = ResourceState{MemoryPressure: 0.1}
	p = g.Refresh()
	assert.Equal(t, DefaultPolicy(), p)
	assert.Equal(t, uint64(2), g.Transitions())
}

func TestGovernorNilSampler(t *testing.T) {
	g := New(nil, 0)
	defer g.Stop()

	assert.Equal(t, DefaultPolicy(), g.Refresh())
	assert.Equal(t, DefaultPolicy(), g.Policy())
	assert.Equal(t, uint64(0), g.Transitions())
}

func TestGovernorBackgroundLoop(t *testing.T) {
	var pressure atomic.Int64
	sampler := SamplerFunc(func() ResourceState {
		return ResourceState{MemoryPressure: float64(pressure.Load()) / 100}
	})

	g := New(sampler, 5*time.Millisecond)
	g.Start()
	defer g.Stop()

	pressure.Store(90)
	require.Eventually(t, func() bool {
		return g.Policy().ForceCompression
	}, time.Second, time.Millisecond, "loop should pick up the pressure change")

	pressure.Store(10)
	require.Eventually(t, func() bool {
		return !g.Policy().ForceCompression
	}, time.Second, time.Millisecond, "loop should pick up the recovery")

	// Stop is idempotent and safe to call twice
	g.Stop()
	g.Stop()
}
