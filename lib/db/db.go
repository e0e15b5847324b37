package db

import (
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplLinden Implementation = "linden"
	ImplCedar  Implementation = "cedar"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut      Feature = 1 << iota // Support for Put operations
	FeatureGet                          // Support for Get operations
	FeatureRemove                       // Support for Remove operations
	FeatureScan                         // Support for ScanKeys operations
	FeatureTouch                        // Support for access bookkeeping via Touch
	FeatureSnapshot                     // Support for Save/Load snapshots
	FeatureDurable                      // State survives process restarts
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureRemove:
		return "Remove"
	case FeatureScan:
		return "Scan"
	case FeatureTouch:
		return "Touch"
	case FeatureSnapshot:
		return "Snapshot"
	case FeatureDurable:
		return "Durable"
	default:
		return "Unknown"
	}
}

// CompressionTier identifies the compression scheme applied to a record
// payload. The tier names describe the contract (speed/ratio trade-off),
// not the concrete codec backing them.
type CompressionTier uint8

const (
	TierNone   CompressionTier = iota // payload stored as-is
	TierFast                          // fastest, modest ratio
	TierSimple                        // fast, simple framing, better ratio
	TierLZ77                          // full match+entropy coding, best ratio
)

func (t CompressionTier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierFast:
		return "fast"
	case TierSimple:
		return "simple"
	case TierLZ77:
		return "lz77"
	default:
		return "unknown"
	}
}

// IsValid reports whether t is one of the defined tiers.
func (t CompressionTier) IsValid() bool {
	return t <= TierLZ77
}

type DatabaseInfo struct {
	Keys              int            `json:"keys"`
	PayloadBytes      int64          `json:"payload_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Record Model
// --------------------------------------------------------------------------

// Metadata describes how a record payload was produced and tracks its
// lifecycle. Size always equals len(Payload) at the time of the write,
// Version strictly increases per key starting at 1.
type Metadata struct {
	OriginalSize   int             `json:"original_size"`
	Compressed     bool            `json:"compressed"`
	Encrypted      bool            `json:"encrypted"`
	Algorithm      CompressionTier `json:"algorithm"`
	Checksum       uint64          `json:"checksum"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        uint64          `json:"version"`
	Size           int             `json:"size"`
	AccessCount    uint64          `json:"access_count"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
}

// Record is the unit stored by a RecordDB: the processed payload bytes
// plus their metadata. Records are value types; the engine owns all
// payload buffers exclusively, so implementations hand out copies.
type Record struct {
	Payload []byte   `json:"payload"`
	Meta    Metadata `json:"meta"`
}

// Clone returns a deep copy of the record with its own payload buffer.
func (r Record) Clone() Record {
	cp := r
	if r.Payload != nil {
		cp.Payload = make([]byte, len(r.Payload))
		copy(cp.Payload, r.Payload)
	}
	return cp
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// RecordDB defines an interface for record database implementations.
// It provides methods for basic operations like Put, Get, Remove, and various utility functions.
// Any implementation of this interface must manage keys in a consistent way.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
//
// Write operations return an error only when the backing medium can fail;
// purely in-memory implementations always return nil.
type RecordDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or updates the record stored under the given key.
	// If the key already exists, the old record is overwritten.
	Put(key string, rec Record) (err error)

	// Remove deletes the record stored under the given key.
	// The boolean return value indicates whether the key existed.
	Remove(key string) (existed bool, err error)

	// Touch updates the access bookkeeping of the record stored under the
	// given key: AccessCount is incremented and LastAccessedAt is set to at.
	// Touch on a missing key is a no-op.
	Touch(key string, at time.Time) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the record for an exact key.
	// The boolean return value indicates whether a record for the key was found.
	Get(key string) (rec Record, loaded bool, err error)

	// Contains checks whether a key exists in the database.
	Contains(key string) (loaded bool, err error)

	// ScanKeys returns all keys matching the given glob pattern, where '*'
	// matches any substring. The pattern is matched against the whole key.
	ScanKeys(pattern string) (keys []string, err error)

	// ForEach calls fn for every stored key/record pair until fn returns
	// false. The iteration order is unspecified. The record passed to fn
	// is a copy; mutating it does not affect the stored state.
	ForEach(fn func(key string, rec Record) bool) (err error)

	// Len returns the number of stored records.
	Len() (n int)

	// PayloadBytes returns the aggregate size of all stored payloads.
	PayloadBytes() (n int64)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state from data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
