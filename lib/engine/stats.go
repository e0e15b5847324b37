package engine

import (
	"context"
	"io"
	"time"

	"github.com/arbordb/arbor/lib/cache"
	"github.com/arbordb/arbor/lib/health"
	"github.com/arbordb/arbor/lib/index"
	"github.com/arbordb/arbor/lib/wal"
)

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot across every engine subsystem.
type Stats struct {
	Storage     StorageStats     `json:"storage"`
	Performance PerformanceStats `json:"performance"`
	Cache       CacheStats       `json:"cache"`
	Index       index.Stats      `json:"index"`
	Compression CompressionStats `json:"compression"`
	Encryption  EncryptionStats  `json:"encryption"`
	Health      health.Stats     `json:"health"`
	Config      ConfigStats      `json:"config"`
}

// StorageStats describes the backing store.
type StorageStats struct {
	Backend      string   `json:"backend"`
	Keys         int      `json:"keys"`
	PayloadBytes int64    `json:"payload_bytes"`
	Features     []string `json:"features"`
}

// PerformanceStats aggregates operation counters, the intent log, and the
// current resource policy. WAL is nil when intent logging is disabled.
type PerformanceStats struct {
	OpsTotal        int64         `json:"ops_total"`
	ErrorsTotal     int64         `json:"errors_total"`
	OpsPerSecond    float64       `json:"ops_per_second"`
	ErrorsPerSecond float64       `json:"errors_per_second"`
	WAL             *wal.Stats    `json:"wal,omitempty"`
	Governor        GovernorStats `json:"governor"`
}

// GovernorStats is the observed resource state and the policy derived
// from it.
type GovernorStats struct {
	MemoryPressure     float64 `json:"memory_pressure"`
	NetworkQuality     string  `json:"network_quality"`
	BatteryConstrained bool    `json:"battery_constrained"`
	CacheFraction      float64 `json:"cache_fraction"`
	ForceCompression   bool    `json:"force_compression"`
	PreferHighRatio    bool    `json:"prefer_high_ratio"`
	BatchSize          int     `json:"batch_size"`
	Transitions        uint64  `json:"transitions"`
}

// CacheStats extends the cache counters with the engine-level view.
type CacheStats struct {
	Enabled     bool  `json:"enabled"`
	BudgetBytes int64 `json:"budget_bytes"`
	cache.Stats
}

// CompressionStats reports the codec's compression configuration and the
// cumulative effect of compressed writes.
type CompressionStats struct {
	Enabled          bool    `json:"enabled"`
	MinSize          int     `json:"min_size"`
	MinGain          float64 `json:"min_gain"`
	CompressedWrites uint64  `json:"compressed_writes"`
	BytesSaved       int64   `json:"bytes_saved"`
}

// EncryptionStats reports the codec's encryption configuration.
type EncryptionStats struct {
	Enabled         bool   `json:"enabled"`
	Algorithm       string `json:"algorithm,omitempty"`
	EncryptedWrites uint64 `json:"encrypted_writes"`
}

// ConfigStats echoes the non-sensitive parts of the effective
// configuration.
type ConfigStats struct {
	MaxMemorySize      int64         `json:"max_memory_size"`
	MaxKeyLength       int           `json:"max_key_length"`
	CacheEnabled       bool          `json:"cache_enabled"`
	TransactionSupport bool          `json:"transaction_support"`
	RetryAttempts      int           `json:"retry_attempts"`
	RetryDelay         time.Duration `json:"retry_delay"`
}

// GetStats returns a snapshot of the engine's state. The snapshot is
// assembled from independently updated counters and is not atomic across
// subsystems.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) GetStats() Stats {
	info := e.store.GetInfo()
	features := make([]string, 0, len(info.SupportedFeatures))
	for _, f := range info.SupportedFeatures {
		features = append(features, f.String())
	}

	monStats := e.mon.Stats()
	state := e.gov.State()
	policy := e.gov.Policy()

	perf := PerformanceStats{
		OpsTotal:        monStats.OpsTotal,
		ErrorsTotal:     monStats.ErrorsTotal,
		OpsPerSecond:    monStats.OpsPerSecond,
		ErrorsPerSecond: monStats.ErrorsPerSecond,
		Governor: GovernorStats{
			MemoryPressure:     state.MemoryPressure,
			NetworkQuality:     state.NetworkQuality.String(),
			BatteryConstrained: state.BatteryConstrained,
			CacheFraction:      policy.CacheFraction,
			ForceCompression:   policy.ForceCompression,
			PreferHighRatio:    policy.PreferHighRatio,
			BatchSize:          policy.BatchSize,
			Transitions:        e.gov.Transitions(),
		},
	}
	if e.wlog != nil {
		walStats := e.wlog.Stats()
		perf.WAL = &walStats
	}

	cacheStats := CacheStats{Enabled: e.cache != nil}
	if e.cache != nil {
		cacheStats.Stats = e.cache.Stats()
		cacheStats.BudgetBytes = e.cacheBudget()
	}

	encryption := EncryptionStats{
		Enabled:         e.cfg.EncryptionEnabled,
		EncryptedWrites: e.encryptedWrites.Load(),
	}
	if e.cfg.EncryptionEnabled {
		encryption.Algorithm = "xchacha20-poly1305"
	}

	return Stats{
		Storage: StorageStats{
			Backend:      string(info.DbType),
			Keys:         info.Keys,
			PayloadBytes: info.PayloadBytes,
			Features:     features,
		},
		Performance: perf,
		Cache:       cacheStats,
		Index:       e.index.Stats(),
		Compression: CompressionStats{
			Enabled:          e.cfg.CompressionEnabled,
			MinSize:          e.cfg.CompressMinSize,
			MinGain:          e.cfg.CompressMinGain,
			CompressedWrites: e.compressedWrites.Load(),
			BytesSaved:       e.compressionSaved.Load(),
		},
		Encryption: encryption,
		Health:     monStats,
		Config: ConfigStats{
			MaxMemorySize:      e.cfg.MaxMemorySize,
			MaxKeyLength:       e.cfg.MaxKeyLength,
			CacheEnabled:       e.cfg.CacheEnabled,
			TransactionSupport: e.cfg.TransactionSupport,
			RetryAttempts:      e.cfg.RetryAttempts,
			RetryDelay:         e.cfg.RetryDelay,
		},
	}
}

// --------------------------------------------------------------------------
// Health Check
// --------------------------------------------------------------------------

// HealthStatus is the result of an on-demand health check.
type HealthStatus struct {
	Healthy    bool      `json:"healthy"`
	Timestamp  time.Time `json:"timestamp"`
	TestPassed bool      `json:"test_passed"`
	Issues     []string  `json:"issues,omitempty"`
	Stats      Stats     `json:"stats"`
}

// HealthCheck runs a synthetic round trip through the full stack and
// evaluates the health thresholds, independent of the periodic loop. The
// verdict also updates the monitor's health state.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) HealthCheck(ctx context.Context) HealthStatus {
	if e.closed.Load() {
		return HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Issues:    []string{"engine is closed"},
		}
	}

	result := e.mon.RunSelfTest(ctx)
	return HealthStatus{
		Healthy:    result.Healthy,
		Timestamp:  result.Timestamp,
		TestPassed: result.TestPassed,
		Issues:     result.Issues,
		Stats:      e.GetStats(),
	}
}

// WritePrometheus writes the engine's operation metrics in Prometheus
// text format.
func (e *Engine) WritePrometheus(w io.Writer) {
	e.mon.WritePrometheus(w)
}
