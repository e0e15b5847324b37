package cedar

import (
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/arbordb/arbor/lib/db"
	"github.com/arbordb/arbor/lib/db/util"
	_ "modernc.org/sqlite"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// schema creates the records table. Timestamps are stored as Unix
// nanoseconds so metadata round-trips without precision loss, 0 marks
// the zero time.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	key              TEXT PRIMARY KEY,
	payload          BLOB NOT NULL,
	original_size    INTEGER NOT NULL,
	compressed       INTEGER NOT NULL,
	encrypted        INTEGER NOT NULL,
	algorithm        INTEGER NOT NULL,
	checksum         INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	version          INTEGER NOT NULL,
	access_count     INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL
);`

// --------------------------------------------------------------------------
// Core Cedar database structure
// --------------------------------------------------------------------------

// cedarImpl implements a durable record database backed by SQLite
type cedarImpl struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

// DBOptions configures the cedarImpl behavior during initialization
type DBOptions struct {
	Path string // Database file path (":memory:" for an in-memory database)
}

// DefaultOptions returns the default cedarImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Path: ":memory:",
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewCedarDB opens (or creates) a SQLite-backed record database at the
// configured path.
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func NewCedarDB(opts *DBOptions) (db.RecordDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	conn, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", opts.Path, err)
	}

	// SQLite allows a single writer. Capping the pool at one connection
	// keeps writers from contending and gives in-memory databases a
	// single shared schema.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &cedarImpl{conn: conn, path: opts.Path}, nil
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or updates the record stored under the given key.
// If the key already exists, the old record is overwritten.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Put(key string, rec db.Record) error {
	cedar.mu.Lock()
	defer cedar.mu.Unlock()

	meta := rec.Meta
	_, err := cedar.conn.Exec(`
		INSERT INTO records (key, payload, original_size, compressed, encrypted,
			algorithm, checksum, created_at, updated_at, version,
			access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			original_size = excluded.original_size,
			compressed = excluded.compressed,
			encrypted = excluded.encrypted,
			algorithm = excluded.algorithm,
			checksum = excluded.checksum,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			version = excluded.version,
			access_count = excluded.access_count,
			last_accessed_at = excluded.last_accessed_at`,
		key, rec.Payload, meta.OriginalSize, boolToInt(meta.Compressed), boolToInt(meta.Encrypted),
		int(meta.Algorithm), int64(meta.Checksum), timeToNano(meta.CreatedAt),
		timeToNano(meta.UpdatedAt), int64(meta.Version),
		int64(meta.AccessCount), timeToNano(meta.LastAccessedAt),
	)
	if err != nil {
		return db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("put %q", key), err)
	}
	return nil
}

// Remove deletes the record stored under the given key.
// The boolean return value indicates whether the key existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Remove(key string) (bool, error) {
	cedar.mu.Lock()
	defer cedar.mu.Unlock()

	res, err := cedar.conn.Exec("DELETE FROM records WHERE key = ?", key)
	if err != nil {
		return false, db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("remove %q", key), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("remove %q", key), err)
	}
	return affected > 0, nil
}

// Touch updates the access bookkeeping of the record stored under the given
// key. Touch on a missing key is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Touch(key string, at time.Time) error {
	cedar.mu.Lock()
	defer cedar.mu.Unlock()

	_, err := cedar.conn.Exec(
		"UPDATE records SET access_count = access_count + 1, last_accessed_at = ? WHERE key = ?",
		timeToNano(at), key,
	)
	if err != nil {
		return db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("touch %q", key), err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

const recordColumns = `payload, original_size, compressed, encrypted, algorithm,
	checksum, created_at, updated_at, version, access_count, last_accessed_at`

// Get retrieves the record for an exact key.
// The boolean indicates whether a record for the key was found.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Get(key string) (db.Record, bool, error) {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	row := cedar.conn.QueryRow("SELECT "+recordColumns+" FROM records WHERE key = ?", key)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return db.Record{}, false, nil
	}
	if err != nil {
		return db.Record{}, false, db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("get %q", key), err)
	}
	return rec, true, nil
}

// Contains checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Contains(key string) (bool, error) {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	var one int
	err := cedar.conn.QueryRow("SELECT 1 FROM records WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, db.WrapError(db.ErrCTransientStorage, fmt.Sprintf("contains %q", key), err)
	}
	return true, nil
}

// ScanKeys returns all keys matching the given glob pattern.
// The pattern is evaluated in Go instead of SQL LIKE so that scan semantics
// are identical across database implementations.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) ScanKeys(pattern string) ([]string, error) {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	rows, err := cedar.conn.Query("SELECT key FROM records")
	if err != nil {
		return nil, db.WrapError(db.ErrCTransientStorage, "scan keys", err)
	}
	defer rows.Close()

	matchAll := util.MatchesAll(pattern)
	var re *regexp.Regexp
	if !matchAll {
		re, err = util.CompilePattern(pattern)
		if err != nil {
			return nil, db.WrapError(db.ErrCInternal, "invalid scan pattern", err)
		}
	}

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, db.WrapError(db.ErrCTransientStorage, "scan keys", err)
		}
		if matchAll || re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

// ForEach calls fn for every stored key/record pair until fn returns false.
// fn must not call back into the database, the iteration holds the
// connection.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) ForEach(fn func(key string, rec db.Record) bool) error {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	rows, err := cedar.conn.Query("SELECT key, " + recordColumns + " FROM records")
	if err != nil {
		return db.WrapError(db.ErrCTransientStorage, "iterate records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		rec, err := scanRecord(func(dest ...interface{}) error {
			return rows.Scan(append([]interface{}{&key}, dest...)...)
		})
		if err != nil {
			return db.WrapError(db.ErrCTransientStorage, "iterate records", err)
		}
		if !fn(key, rec) {
			return nil
		}
	}
	return rows.Err()
}

// Len returns the number of stored records.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) Len() int {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	var count int
	if err := cedar.conn.QueryRow("SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0
	}
	return count
}

// PayloadBytes returns the aggregate size of all stored payloads.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (cedar *cedarImpl) PayloadBytes() int64 {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	var n int64
	if err := cedar.conn.QueryRow("SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM records").Scan(&n); err != nil {
		return 0
	}
	return n
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save is not supported: cedar persists through its backing file.
func (cedar *cedarImpl) Save(io.Writer) error {
	return db.NewError(db.ErrCUnsupportedOperation, "cedar persists through its backing file, snapshots are not supported")
}

// Load is not supported: cedar persists through its backing file.
func (cedar *cedarImpl) Load(io.Reader) error {
	return db.NewError(db.ErrCUnsupportedOperation, "cedar persists through its backing file, snapshots are not supported")
}

// --------------------------------------------------------------------------
// RecordDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (cedar *cedarImpl) GetInfo() db.DatabaseInfo {
	cedar.mu.RLock()
	defer cedar.mu.RUnlock()

	// estimate the on-disk footprint from the sqlite page stats
	var pageCount, pageSize int64
	_ = cedar.conn.QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = cedar.conn.QueryRow("PRAGMA page_size").Scan(&pageSize)

	var count int
	_ = cedar.conn.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	var payloadBytes int64
	_ = cedar.conn.QueryRow("SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM records").Scan(&payloadBytes)

	meta := &struct {
		Path      string `json:"path"`
		FileBytes int64  `json:"file_bytes"`
		Info      string `json:"info"`
	}{
		Path:      cedar.path,
		FileBytes: pageCount * pageSize,
		Info:      "FileBytes is derived from sqlite page stats and includes free pages.",
	}

	supportedFeatures := []db.Feature{
		db.FeaturePut, db.FeatureGet, db.FeatureRemove,
		db.FeatureScan, db.FeatureTouch, db.FeatureDurable,
	}

	return db.DatabaseInfo{
		Keys:              count,
		PayloadBytes:      payloadBytes,
		DbType:            db.ImplCedar,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific RecordDB feature
func (cedar *cedarImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureGet |
		db.FeatureRemove |
		db.FeatureScan |
		db.FeatureTouch |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

// Close shuts down the database connection.
func (cedar *cedarImpl) Close() error {
	return cedar.conn.Close()
}

// --------------------------------------------------------------------------
// Row Scanning Helpers
// --------------------------------------------------------------------------

// scanRecord decodes one row selected with recordColumns
func scanRecord(scan func(dest ...interface{}) error) (db.Record, error) {
	var (
		payload      []byte
		originalSize int
		compressed   int
		encrypted    int
		algorithm    int
		checksum     int64
		createdAt    int64
		updatedAt    int64
		version      int64
		accessCount  int64
		lastAccessed int64
	)
	if err := scan(&payload, &originalSize, &compressed, &encrypted, &algorithm,
		&checksum, &createdAt, &updatedAt, &version, &accessCount, &lastAccessed); err != nil {
		return db.Record{}, err
	}

	return db.Record{
		Payload: payload,
		Meta: db.Metadata{
			OriginalSize: originalSize,
			Compressed:   compressed != 0,
			Encrypted:    encrypted != 0,
			Algorithm:    db.CompressionTier(algorithm),
			Checksum:     uint64(checksum),
			CreatedAt:    nanoToTime(createdAt),
			UpdatedAt:    nanoToTime(updatedAt),
			Version:      uint64(version),
			// Size always mirrors the stored payload length
			Size:           len(payload),
			AccessCount:    uint64(accessCount),
			LastAccessedAt: nanoToTime(lastAccessed),
		},
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToNano converts a timestamp for column storage.
// The zero time maps to 0 because time.Time{} is outside the range
// representable as Unix nanoseconds.
func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// nanoToTime is the inverse of timeToNano
func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
