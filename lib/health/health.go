package health

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/arbordb/arbor/lib/logger"
)

var log = logger.GetLogger("health")

const (
	// KeyPrefix is the reserved namespace for synthetic self-test keys
	KeyPrefix = "healthcheck:"

	// DefaultInterval between periodic self-tests
	DefaultInterval = 60 * time.Second

	// DefaultMaxErrorRate is the aggregate error rate above which the
	// engine is flagged unhealthy
	DefaultMaxErrorRate = 0.1

	// DefaultMinCacheHitRatio is the cache hit ratio below which the
	// engine is flagged unhealthy, once enough lookups were observed
	DefaultMinCacheHitRatio = 0.05

	// DefaultMinHitSamples is the number of cache lookups required before
	// the hit ratio threshold applies
	DefaultMinHitSamples = 100

	// selfTestTimeout bounds one periodic self-test
	selfTestTimeout = time.Minute

	// maxRecentErrors bounds the retained error log
	maxRecentErrors = 100
)

// --------------------------------------------------------------------------
// Target
// --------------------------------------------------------------------------

// Target is the operation surface the monitor probes with its synthetic
// round trips. The engine facade provides an adapter implementing it.
type Target interface {
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) (interface{}, error)
	Delete(ctx context.Context, key string) error
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

// SelfTestResult is the outcome of one health evaluation
type SelfTestResult struct {
	// Healthy is false when the round trip failed or a threshold is breached
	Healthy bool `json:"healthy"`

	// TestPassed reports whether the synthetic round trip verified
	TestPassed bool `json:"test_passed"`

	// Issues lists everything that went wrong, empty when healthy
	Issues []string `json:"issues,omitempty"`

	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// ErrorRecord is one retained operation failure
type ErrorRecord struct {
	Time  time.Time `json:"time"`
	Op    string    `json:"op"`
	Error string    `json:"error"`
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Monitor
type Options struct {
	// Interval between periodic self-tests (default 60s)
	Interval time.Duration

	// MaxErrorRate flags the engine unhealthy above this aggregate error
	// rate (default 0.1)
	MaxErrorRate float64

	// MinCacheHitRatio flags the engine unhealthy below this cache hit
	// ratio (default 0.05), only once MinHitSamples lookups were seen
	MinCacheHitRatio float64

	// MinHitSamples gates the hit ratio threshold (default 100)
	MinHitSamples uint64

	// CacheStats optionally reports cache hits and misses. Without it the
	// hit ratio threshold is skipped.
	CacheStats func() (hits, misses uint64)
}

// DefaultOptions returns the default monitor configuration
func DefaultOptions() *Options {
	return &Options{
		Interval:         DefaultInterval,
		MaxErrorRate:     DefaultMaxErrorRate,
		MinCacheHitRatio: DefaultMinCacheHitRatio,
		MinHitSamples:    DefaultMinHitSamples,
	}
}

// --------------------------------------------------------------------------
// Monitor
// --------------------------------------------------------------------------

// Monitor tracks engine health: it counts and times operations, keeps a
// bounded log of recent failures, and periodically verifies the engine
// with a synthetic write/read/delete round trip. An unhealthy result
// never halts the engine, it only flags state for callers to surface.
type Monitor struct {
	target Target
	opts   Options

	set *vmetrics.Set

	ops    gometrics.Meter
	errors gometrics.Meter

	healthy    atomic.Bool
	lastResult atomic.Pointer[SelfTestResult]

	errMu      sync.Mutex
	recentErrs []ErrorRecord

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a monitor probing the target. Nil options select the
// defaults. The monitor reports healthy until the first evidence of a
// problem.
func New(target Target, opts *Options) *Monitor {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxErrorRate <= 0 {
		opts.MaxErrorRate = DefaultMaxErrorRate
	}
	if opts.MinHitSamples == 0 {
		opts.MinHitSamples = DefaultMinHitSamples
	}

	m := &Monitor{
		target: target,
		opts:   *opts,
		set:    vmetrics.NewSet(),
		ops:    gometrics.NewMeter(),
		errors: gometrics.NewMeter(),
		stop:   make(chan struct{}),
	}
	m.healthy.Store(true)

	return m
}

// RecordOp accounts one public operation: its name, duration and outcome.
// The engine facade calls this on every completed call.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Monitor) RecordOp(op string, d time.Duration, err error) {
	m.ops.Mark(1)

	status := "ok"
	if err != nil {
		status = "error"
		m.errors.Mark(1)

		m.errMu.Lock()
		m.recentErrs = append(m.recentErrs, ErrorRecord{
			Time:  time.Now(),
			Op:    op,
			Error: err.Error(),
		})
		if len(m.recentErrs) > maxRecentErrors {
			m.recentErrs = m.recentErrs[len(m.recentErrs)-maxRecentErrors:]
		}
		m.errMu.Unlock()
	}

	m.set.GetOrCreateCounter(fmt.Sprintf(`arbor_ops_total{op=%q,status=%q}`, op, status)).Inc()
	m.set.GetOrCreateSummary(fmt.Sprintf(`arbor_op_duration_seconds{op=%q}`, op)).Update(d.Seconds())
}

// RecentErrors returns a copy of the bounded recent failure log, oldest
// first.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Monitor) RecentErrors() []ErrorRecord {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	out := make([]ErrorRecord, len(m.recentErrs))
	copy(out, m.recentErrs)
	return out
}

// ErrorRate returns the aggregate error rate over all recorded operations
func (m *Monitor) ErrorRate() float64 {
	ops := m.ops.Count()
	if ops == 0 {
		return 0
	}
	return float64(m.errors.Count()) / float64(ops)
}

// Healthy returns the verdict of the most recent evaluation
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// LastResult returns the most recent self-test result, nil before the
// first run.
func (m *Monitor) LastResult() *SelfTestResult {
	return m.lastResult.Load()
}

// --------------------------------------------------------------------------
// Self-Test
// --------------------------------------------------------------------------

// RunSelfTest writes a synthetic key in the reserved namespace, reads it
// back, verifies the value and deletes it again, then checks the error
// rate and cache hit ratio thresholds. The combined verdict is published
// and returned.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Monitor) RunSelfTest(ctx context.Context) SelfTestResult {
	start := time.Now()
	result := SelfTestResult{TestPassed: true, Timestamp: start}

	key := KeyPrefix + uuid.New().String()
	value := map[string]interface{}{"nonce": uuid.New().String()}

	if err := m.target.Set(ctx, key, value); err != nil {
		result.TestPassed = false
		result.Issues = append(result.Issues, fmt.Sprintf("self-test write failed: %v", err))
	} else {
		got, err := m.target.Get(ctx, key)
		switch {
		case err != nil:
			result.TestPassed = false
			result.Issues = append(result.Issues, fmt.Sprintf("self-test read failed: %v", err))
		case !reflect.DeepEqual(got, value):
			result.TestPassed = false
			result.Issues = append(result.Issues, fmt.Sprintf("self-test value mismatch: wrote %v, read %v", value, got))
		}

		if err := m.target.Delete(ctx, key); err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("self-test cleanup failed: %v", err))
		}
	}

	if rate := m.ErrorRate(); rate > m.opts.MaxErrorRate {
		result.Issues = append(result.Issues,
			fmt.Sprintf("error rate %.3f exceeds threshold %.3f", rate, m.opts.MaxErrorRate))
	}

	if m.opts.CacheStats != nil && m.opts.MinCacheHitRatio > 0 {
		hits, misses := m.opts.CacheStats()
		if total := hits + misses; total >= m.opts.MinHitSamples {
			if ratio := float64(hits) / float64(total); ratio < m.opts.MinCacheHitRatio {
				result.Issues = append(result.Issues,
					fmt.Sprintf("cache hit ratio %.3f below threshold %.3f", ratio, m.opts.MinCacheHitRatio))
			}
		}
	}

	result.Healthy = len(result.Issues) == 0
	result.Duration = time.Since(start)

	previous := m.healthy.Swap(result.Healthy)
	m.lastResult.Store(&result)

	status := "ok"
	if !result.Healthy {
		status = "unhealthy"
		log.WithFields(logrus.Fields{
			"issues":   result.Issues,
			"duration": result.Duration,
		}).Warn("self-test flagged the engine unhealthy")
	} else if !previous {
		log.Info("self-test passed, engine healthy again")
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`arbor_selftest_total{status=%q}`, status)).Inc()

	return result
}

// Start launches the periodic self-test loop. It runs until Stop is
// called.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	for {
		// +/- 20% jitter to decorrelate periodic work
		interval := m.opts.Interval + time.Duration((rand.Float64()-0.5)*0.4*float64(m.opts.Interval))

		select {
		case <-m.stop:
			return
		case <-time.After(interval):
			ctx, cancel := context.WithTimeout(context.Background(), selfTestTimeout)
			m.RunSelfTest(ctx)
			cancel()
		}
	}
}

// Stop halts the periodic loop and the rate meters. It is safe to call
// multiple times and also when Start was never called.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.ops.Stop()
		m.errors.Stop()
	})
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot of the monitor counters
type Stats struct {
	Healthy         bool    `json:"healthy"`
	OpsTotal        int64   `json:"ops_total"`
	ErrorsTotal     int64   `json:"errors_total"`
	ErrorRate       float64 `json:"error_rate"`
	OpsPerSecond    float64 `json:"ops_per_second"`
	ErrorsPerSecond float64 `json:"errors_per_second"`
	RecentErrors    int     `json:"recent_errors"`
}

// Stats returns a snapshot of the monitor counters. The per-second rates
// are one-minute moving averages.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Monitor) Stats() Stats {
	m.errMu.Lock()
	recent := len(m.recentErrs)
	m.errMu.Unlock()

	return Stats{
		Healthy:         m.healthy.Load(),
		OpsTotal:        m.ops.Count(),
		ErrorsTotal:     m.errors.Count(),
		ErrorRate:       m.ErrorRate(),
		OpsPerSecond:    m.ops.Rate1(),
		ErrorsPerSecond: m.errors.Rate1(),
		RecentErrors:    recent,
	}
}

// WritePrometheus writes all collected metrics in Prometheus text format
func (m *Monitor) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
