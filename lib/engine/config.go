package engine

import (
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Config.Backend
const (
	BackendLinden = "linden"
	BackendCedar  = "cedar"
)

// Config holds all configuration parameters for an engine instance.
type Config struct {
	// Storage settings
	Backend       string // "linden" (in-memory, default) or "cedar" (sqlite)
	Path          string // backing file for the cedar backend, ":memory:" if empty
	MaxMemorySize int64  // memory budget in bytes, drives cache sizing and pressure
	MaxKeyLength  int    // longest accepted key

	// Codec settings
	CompressionEnabled bool
	CompressMinSize    int     // payloads below this size are stored uncompressed
	CompressMinGain    float64 // minimum saved fraction for compression to stick
	EncryptionEnabled  bool
	EncryptionKey      string

	// Cache settings
	CacheEnabled bool

	// Write-ahead log settings
	TransactionSupport bool // enables intent logging for mutations
	WALRetention       time.Duration
	WALMaxEntries      int

	// Retry settings
	RetryAttempts int
	RetryDelay    time.Duration

	// Background loop intervals, non-positive disables the loop
	IndexGCInterval     time.Duration
	HealthCheckInterval time.Duration
	GovernorInterval    time.Duration

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the configuration used when options are left unset
func DefaultConfig() Config {
	return Config{
		Backend:       BackendLinden,
		MaxMemorySize: 100 * 1024 * 1024,
		MaxKeyLength:  250,

		CompressionEnabled: true,
		CompressMinSize:    100,
		CompressMinGain:    0.10,

		CacheEnabled: true,

		TransactionSupport: true,
		WALRetention:       5 * time.Minute,
		WALMaxEntries:      10000,

		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,

		IndexGCInterval:     time.Minute,
		HealthCheckInterval: time.Minute,
		GovernorInterval:    30 * time.Second,

		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLinden, BackendCedar:
	case "":
		return fmt.Errorf("backend must be set, use %q or %q", BackendLinden, BackendCedar)
	default:
		return fmt.Errorf("unknown backend %q, use %q or %q", c.Backend, BackendLinden, BackendCedar)
	}

	if c.MaxMemorySize <= 0 {
		return fmt.Errorf("max memory size must be positive, got %d", c.MaxMemorySize)
	}
	if c.MaxKeyLength <= 0 {
		return fmt.Errorf("max key length must be positive, got %d", c.MaxKeyLength)
	}

	if c.EncryptionEnabled && c.EncryptionKey == "" {
		return fmt.Errorf("encryption is enabled but no encryption key is configured")
	}
	if c.CompressMinGain < 0 || c.CompressMinGain >= 1 {
		return fmt.Errorf("compression min gain must be in [0, 1), got %v", c.CompressMinGain)
	}
	if c.CompressMinSize < 0 {
		return fmt.Errorf("compression min size must not be negative, got %d", c.CompressMinSize)
	}

	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %v", c.RetryDelay)
	}

	if c.WALRetention < 0 {
		return fmt.Errorf("wal retention must not be negative, got %v", c.WALRetention)
	}
	if c.WALMaxEntries < 0 {
		return fmt.Errorf("wal max entries must not be negative, got %d", c.WALMaxEntries)
	}

	return nil
}

// String returns a formatted string representation of the configuration.
// The encryption key is redacted.
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	key := "(not set)"
	if c.EncryptionKey != "" {
		key = "********"
	}

	addSection("Storage")
	addField("Backend", c.Backend)
	if c.Backend == BackendCedar {
		path := c.Path
		if path == "" {
			path = ":memory:"
		}
		addField("Path", path)
	}
	addField("Max Memory Size", fmt.Sprintf("%d bytes", c.MaxMemorySize))
	addField("Max Key Length", fmt.Sprintf("%d", c.MaxKeyLength))

	addSection("Codec")
	addField("Compression", fmt.Sprintf("%t", c.CompressionEnabled))
	addField("Compress Min Size", fmt.Sprintf("%d bytes", c.CompressMinSize))
	addField("Compress Min Gain", fmt.Sprintf("%.2f", c.CompressMinGain))
	addField("Encryption", fmt.Sprintf("%t", c.EncryptionEnabled))
	addField("Encryption Key", key)

	addSection("Cache")
	addField("Enabled", fmt.Sprintf("%t", c.CacheEnabled))

	addSection("Write-Ahead Log")
	addField("Enabled", fmt.Sprintf("%t", c.TransactionSupport))
	addField("Retention", c.WALRetention.String())
	addField("Max Entries", fmt.Sprintf("%d", c.WALMaxEntries))

	addSection("Retry")
	addField("Attempts", fmt.Sprintf("%d", c.RetryAttempts))
	addField("Base Delay", c.RetryDelay.String())

	addSection("Background Loops")
	addField("Index GC Interval", c.IndexGCInterval.String())
	addField("Health Interval", c.HealthCheckInterval.String())
	addField("Governor Interval", c.GovernorInterval.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
