package engine

import (
	"context"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arbordb/arbor/lib/cache"
	"github.com/arbordb/arbor/lib/codec"
	"github.com/arbordb/arbor/lib/db"
	"github.com/arbordb/arbor/lib/db/engines/cedar"
	"github.com/arbordb/arbor/lib/db/engines/linden"
	"github.com/arbordb/arbor/lib/governor"
	"github.com/arbordb/arbor/lib/health"
	"github.com/arbordb/arbor/lib/index"
	"github.com/arbordb/arbor/lib/lockmgr"
	"github.com/arbordb/arbor/lib/logger"
	"github.com/arbordb/arbor/lib/wal"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Constants and Errors
// --------------------------------------------------------------------------

// BackupPrefix namespaces shadow copies written by SetOptions.Backup.
// Backup records live in the primary store like any other record but are
// never cached, indexed, or returned by Query, and they survive deletion
// of their primary key.
const BackupPrefix = "backup:"

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = db.NewError(db.ErrCInternal, "engine is closed")

// --------------------------------------------------------------------------
// Option and Result Types
// --------------------------------------------------------------------------

// SetOptions override per-write behavior. Nil pointers inherit the
// engine-wide configuration.
type SetOptions struct {
	// Compress overrides the configured compression default for this write
	Compress *bool

	// Encrypt overrides the configured encryption default for this write
	Encrypt *bool

	// Backup additionally stores a shadow copy under "backup:<key>"
	Backup bool
}

// WriteResult describes a completed write.
type WriteResult struct {
	Key        string        `json:"key"`
	Size       int           `json:"size"`
	Duration   time.Duration `json:"duration"`
	Compressed bool          `json:"compressed"`
	Encrypted  bool          `json:"encrypted"`
	Version    uint64        `json:"version"`
}

// DeleteResult describes a completed delete.
type DeleteResult struct {
	Existed bool `json:"existed"`
}

// KeysOptions paginate key listings. Offset and Limit apply to the sorted
// key list, so pages are stable across calls.
type KeysOptions struct {
	Limit  int
	Offset int
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is the storage facade: it validates input, serializes values,
// compresses and encrypts payloads, maintains the cache and the field
// index, logs write intents, and keeps the store healthy. All methods are
// safe for concurrent use.
type Engine struct {
	id    string
	cfg   Config
	store db.RecordDB
	codec *codec.Codec
	cache *cache.Cache // nil when the cache is disabled
	index *index.Index
	wlog  *wal.Log // nil when intent logging is disabled
	gov   *governor.Governor
	mon   *health.Monitor
	locks lockmgr.IKeyLocker

	closed atomic.Bool

	compressedWrites atomic.Uint64
	encryptedWrites  atomic.Uint64
	compressionSaved atomic.Int64
}

// New builds an engine from the given configuration and starts its
// background loops. The configuration is validated strictly; callers
// should start from DefaultConfig and override what they need.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	cdc, err := codec.New(codec.Options{
		CompressionEnabled: cfg.CompressionEnabled,
		EncryptionEnabled:  cfg.EncryptionEnabled,
		EncryptionKey:      cfg.EncryptionKey,
		CompressMinSize:    cfg.CompressMinSize,
		CompressMinGain:    cfg.CompressMinGain,
	})
	if err != nil {
		return nil, err
	}

	var store db.RecordDB
	switch cfg.Backend {
	case BackendLinden:
		store = linden.NewLindenDB(nil)
	case BackendCedar:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		store, err = cedar.NewCedarDB(&cedar.DBOptions{Path: path})
		if err != nil {
			return nil, err
		}
	default:
		// Validate already rejected unknown backends
		return nil, db.NewErrorf(db.ErrCInternal, "unknown backend %q", cfg.Backend)
	}

	e := &Engine{
		id:    uuid.New().String(),
		cfg:   cfg,
		store: store,
		codec: cdc,
		index: index.New(),
		locks: lockmgr.NewKeyLocker(0),
	}

	if cfg.CacheEnabled {
		e.cache = cache.New()
	}
	if cfg.TransactionSupport {
		e.wlog = wal.New(&wal.Options{
			Retention:  cfg.WALRetention,
			MaxEntries: cfg.WALMaxEntries,
		})
	}

	e.gov = governor.New(&governor.MemorySampler{
		Usage: func() int64 {
			total := e.store.PayloadBytes()
			if e.cache != nil {
				total += e.cache.Bytes()
			}
			return total
		},
		Budget: cfg.MaxMemorySize,
	}, cfg.GovernorInterval)

	hopts := health.DefaultOptions()
	hopts.Interval = cfg.HealthCheckInterval
	if e.cache != nil {
		hopts.CacheStats = func() (uint64, uint64) {
			s := e.cache.Stats()
			return s.Hits, s.Misses
		}
	}
	e.mon = health.New(healthTarget{engine: e}, hopts)

	if cfg.IndexGCInterval > 0 {
		e.index.StartGC(cfg.IndexGCInterval)
	}
	if cfg.GovernorInterval > 0 {
		e.gov.Start()
	}
	if cfg.HealthCheckInterval > 0 {
		e.mon.Start()
	}

	log.WithFields(logrus.Fields{
		"id":      e.id,
		"backend": cfg.Backend,
		"cache":   cfg.CacheEnabled,
		"wal":     cfg.TransactionSupport,
	}).Info("engine started")

	return e, nil
}

// Close stops the background loops, drains the intent log, and closes the
// backing store. Close is idempotent; operations after Close return
// ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mon.Stop()
	e.gov.Stop()
	e.index.Close()

	var firstErr error
	if e.wlog != nil {
		if err := e.wlog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.cache != nil {
		e.cache.Clear()
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	log.WithFields(logrus.Fields{"id": e.id}).Info("engine closed")
	return firstErr
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set stores a value under the given key, creating or overwriting it.
// The value is serialized to its canonical form, then compressed and
// encrypted according to the configuration, the per-call options, and the
// current resource policy.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Writes to the same key are serialized, so versions per key are dense and
// strictly increasing.
func (e *Engine) Set(ctx context.Context, key string, value interface{}, opts *SetOptions) (_ *WriteResult, err error) {
	start := time.Now()
	defer func() { e.mon.RecordOp("set", time.Since(start), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	if err = e.validateKey(key); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &SetOptions{}
	}

	raw, err := e.codec.Marshal(value)
	if err != nil {
		return nil, err
	}

	policy := e.gov.Policy()
	encOpts := codec.EncodeOptions{
		Compress: opts.Compress,
		Encrypt:  opts.Encrypt,
		Hints: codec.Hints{
			ForceCompression: policy.ForceCompression,
			PreferHighRatio:  policy.PreferHighRatio,
		},
	}

	var rec db.Record
	err = e.withRetry(ctx, "set", func() error {
		return e.apply(key, raw, encOpts, opts.Backup, &rec)
	})
	if err != nil {
		return nil, err
	}

	return &WriteResult{
		Key:        key,
		Size:       rec.Meta.Size,
		Duration:   time.Since(start),
		Compressed: rec.Meta.Compressed,
		Encrypted:  rec.Meta.Encrypted,
		Version:    rec.Meta.Version,
	}, nil
}

// apply runs one write attempt under the key's lock: log the intent,
// encode the payload, chain the version, store the record, then refresh
// cache and index. The intent is logged before any state changes, so the
// log always leads the store.
func (e *Engine) apply(key string, raw []byte, encOpts codec.EncodeOptions, backup bool, out *db.Record) error {
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	if e.wlog != nil {
		if _, err := e.wlog.Append(wal.OpSet, key, raw); err != nil {
			return err
		}
	}

	payload, meta, err := e.codec.EncodeBytes(raw, encOpts)
	if err != nil {
		return err
	}

	now := time.Now()
	cur, loaded, err := e.store.Get(key)
	if err != nil {
		return err
	}
	if loaded {
		meta.Version = cur.Meta.Version + 1
		meta.CreatedAt = cur.Meta.CreatedAt
	} else {
		meta.Version = 1
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	meta.LastAccessedAt = now

	rec := db.Record{Payload: payload, Meta: meta}
	if err := e.store.Put(key, rec); err != nil {
		return err
	}

	if meta.Compressed {
		e.compressedWrites.Add(1)
		e.compressionSaved.Add(int64(meta.OriginalSize - meta.Size))
	}
	if meta.Encrypted {
		e.encryptedWrites.Add(1)
	}

	if backup {
		if err := e.writeBackup(key, raw, rec); err != nil {
			return err
		}
	}

	if e.cache != nil {
		e.cache.Put(key, rec)
		e.cache.EvictIfOverBudget(e.cacheBudget())
	}

	if canonical, err := e.codec.Unmarshal(raw); err == nil {
		e.index.OnWrite(key, canonical)
	}

	*out = rec
	return nil
}

// writeBackup stores a shadow copy of the record under the backup
// namespace. The copy shares the primary's encoding but has its own
// lifecycle: it is not cached or indexed and survives deletion of the
// primary key.
func (e *Engine) writeBackup(key string, raw []byte, rec db.Record) error {
	bkey := BackupPrefix + key
	if e.wlog != nil {
		if _, err := e.wlog.Append(wal.OpSet, bkey, raw); err != nil {
			return err
		}
	}
	return e.store.Put(bkey, rec.Clone())
}

// Delete removes the key and its record. Deleting a missing key is not an
// error; the result reports whether the key existed. Backup copies are
// left in place.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Delete(ctx context.Context, key string) (_ *DeleteResult, err error) {
	start := time.Now()
	defer func() { e.mon.RecordOp("delete", time.Since(start), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	if err = e.validateKey(key); err != nil {
		return nil, err
	}

	var existed bool
	err = e.withRetry(ctx, "delete", func() error {
		e.locks.Lock(key)
		defer e.locks.Unlock(key)

		if e.wlog != nil {
			if _, werr := e.wlog.Append(wal.OpDelete, key, nil); werr != nil {
				return werr
			}
		}

		var rerr error
		existed, rerr = e.store.Remove(key)
		if rerr != nil {
			return rerr
		}

		if e.cache != nil {
			e.cache.Invalidate(key)
		}
		e.index.Remove(key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DeleteResult{Existed: existed}, nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value stored under the given key, or nil if the key
// does not exist. Reads prefer the cache; a store read repopulates it.
// Transient store failures degrade to a miss after the retries are
// exhausted, corrupt or undecryptable records surface as errors.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Get(ctx context.Context, key string) (interface{}, error) {
	start := time.Now()
	var opErr error
	defer func() { e.mon.RecordOp("get", time.Since(start), opErr) }()

	if e.closed.Load() {
		opErr = ErrClosed
		return nil, ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		opErr = err
		return nil, err
	}

	if e.cache != nil {
		if rec, ok := e.cache.Get(key); ok {
			value, err := e.codec.Decode(rec.Payload, rec.Meta)
			if err == nil {
				e.touch(key)
				return value, nil
			}
			// The cached copy went bad; drop it and read the store.
			e.cache.Invalidate(key)
		}
	}

	var (
		rec    db.Record
		loaded bool
	)
	err := e.withRetry(ctx, "get", func() error {
		var gerr error
		rec, loaded, gerr = e.store.Get(key)
		return gerr
	})
	if err != nil {
		opErr = err
		if db.IsTransient(err) {
			log.WithFields(logrus.Fields{"key": key, "error": err}).
				Warn("get degraded to a miss after retries")
			return nil, nil
		}
		return nil, err
	}
	if !loaded {
		return nil, nil
	}

	value, err := e.codec.Decode(rec.Payload, rec.Meta)
	if err != nil {
		opErr = err
		return nil, err
	}

	e.touch(key)
	if e.cache != nil {
		e.cache.Put(key, rec)
		e.cache.EvictIfOverBudget(e.cacheBudget())
	}
	return value, nil
}

// Exists reports whether the key holds a record. Failures degrade to
// false; callers needing the distinction should use Get.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Exists(ctx context.Context, key string) bool {
	start := time.Now()
	var opErr error
	defer func() { e.mon.RecordOp("exists", time.Since(start), opErr) }()

	if e.closed.Load() {
		opErr = ErrClosed
		return false
	}
	if err := e.validateKey(key); err != nil {
		opErr = err
		return false
	}

	if e.cache != nil {
		if _, ok := e.cache.Get(key); ok {
			return true
		}
	}

	var loaded bool
	err := e.withRetry(ctx, "exists", func() error {
		var cerr error
		loaded, cerr = e.store.Contains(key)
		return cerr
	})
	if err != nil {
		opErr = err
		log.WithFields(logrus.Fields{"key": key, "error": err}).
			Warn("exists degraded to false after retries")
		return false
	}
	return loaded
}

// Keys lists the keys matching a glob pattern, where '*' matches any
// substring. An empty pattern lists every key, including backup copies.
// The result is sorted; Offset and Limit paginate it. Transient store
// failures degrade to an empty listing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Keys(ctx context.Context, pattern string, opts *KeysOptions) ([]string, error) {
	start := time.Now()
	var opErr error
	defer func() { e.mon.RecordOp("keys", time.Since(start), opErr) }()

	if e.closed.Load() {
		opErr = ErrClosed
		return nil, ErrClosed
	}
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	err := e.withRetry(ctx, "keys", func() error {
		var serr error
		keys, serr = e.store.ScanKeys(pattern)
		return serr
	})
	if err != nil {
		opErr = err
		if db.IsTransient(err) {
			log.WithFields(logrus.Fields{"pattern": pattern, "error": err}).
				Warn("keys degraded to an empty listing after retries")
			return []string{}, nil
		}
		return nil, err
	}

	// ScanKeys order is unspecified; a sorted listing keeps pages stable.
	sort.Strings(keys)

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(keys) {
				return []string{}, nil
			}
			keys = keys[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(keys) {
			keys = keys[:opts.Limit]
		}
	}
	return keys, nil
}

// Query returns all stored values whose fields match the filter. Scalar
// filter fields are answered from the field index; filters without any
// indexable field fall back to a full scan. Every candidate is verified
// against the complete filter before it is returned. An empty filter
// matches everything. Records that cannot be read or decoded are skipped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Engine) Query(ctx context.Context, filter map[string]interface{}) (_ []interface{}, err error) {
	start := time.Now()
	defer func() { e.mon.RecordOp("query", time.Since(start), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}

	candidates, served := e.index.QueryKeys(filter)
	if !served {
		err = e.withRetry(ctx, "query scan", func() error {
			var serr error
			candidates, serr = e.store.ScanKeys("*")
			return serr
		})
		if err != nil {
			if db.IsTransient(err) {
				log.WithFields(logrus.Fields{"error": err}).
					Warn("query degraded to an empty result after retries")
				return []interface{}{}, nil
			}
			return nil, err
		}
	}
	sort.Strings(candidates)

	results := make([]interface{}, 0, len(candidates))
	for _, key := range candidates {
		// Backup copies duplicate their primary's value and never appear
		// in query results. Index candidates cannot contain them.
		if strings.HasPrefix(key, BackupPrefix) {
			continue
		}
		value, ok := e.readValue(ctx, key)
		if !ok {
			continue
		}
		if matchesFilter(value, filter) {
			e.touch(key)
			results = append(results, value)
		}
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a snapshot of the store to w. Only backends supporting
// snapshots can be saved.
func (e *Engine) Save(w io.Writer) (err error) {
	start := time.Now()
	defer func() { e.mon.RecordOp("save", time.Since(start), err) }()

	if e.closed.Load() {
		return ErrClosed
	}
	if !e.store.SupportsFeature(db.FeatureSnapshot) {
		return db.NewErrorf(db.ErrCUnsupportedOperation,
			"backend %s does not support snapshots", e.cfg.Backend)
	}
	return e.store.Save(w)
}

// Load replaces the store state with a snapshot read from r, then clears
// the cache and rebuilds the field index from the restored records.
func (e *Engine) Load(r io.Reader) (err error) {
	start := time.Now()
	defer func() { e.mon.RecordOp("load", time.Since(start), err) }()

	if e.closed.Load() {
		return ErrClosed
	}
	if !e.store.SupportsFeature(db.FeatureSnapshot) {
		return db.NewErrorf(db.ErrCUnsupportedOperation,
			"backend %s does not support snapshots", e.cfg.Backend)
	}

	if err = e.store.Load(r); err != nil {
		return err
	}

	if e.cache != nil {
		e.cache.Clear()
	}
	e.rebuildIndex()
	return nil
}

// rebuildIndex repopulates the field index from the primary store after a
// snapshot load replaced the state wholesale.
func (e *Engine) rebuildIndex() {
	e.index.Reset()
	err := e.store.ForEach(func(key string, rec db.Record) bool {
		if strings.HasPrefix(key, BackupPrefix) {
			return true
		}
		value, derr := e.codec.Decode(rec.Payload, rec.Meta)
		if derr != nil {
			log.Debugf("index rebuild skipped %s: %v", key, derr)
			return true
		}
		e.index.OnWrite(key, value)
		return true
	})
	if err != nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("index rebuild incomplete")
	}
}

// --------------------------------------------------------------------------
// Internal Helpers
// --------------------------------------------------------------------------

// validateKey enforces the key constraints shared by every operation.
func (e *Engine) validateKey(key string) error {
	if key == "" {
		return db.NewError(db.ErrCInvalidKey, "key must not be empty")
	}
	if len(key) > e.cfg.MaxKeyLength {
		return db.NewErrorf(db.ErrCInvalidKey,
			"key length %d exceeds maximum %d", len(key), e.cfg.MaxKeyLength)
	}
	return nil
}

// touch updates the access bookkeeping of a read record. Touch failures
// never affect the read that triggered them.
func (e *Engine) touch(key string) {
	if err := e.store.Touch(key, time.Now()); err != nil {
		log.Debugf("touch %s failed: %v", key, err)
	}
}

// cacheBudget is the byte budget granted to the cache under the current
// resource policy.
func (e *Engine) cacheBudget() int64 {
	return int64(float64(e.cfg.MaxMemorySize) * e.gov.Policy().CacheFraction)
}

// readValue fetches and decodes a record for internal consumers. Any
// failure degrades to a miss.
func (e *Engine) readValue(ctx context.Context, key string) (interface{}, bool) {
	if e.cache != nil {
		if rec, ok := e.cache.Get(key); ok {
			if value, err := e.codec.Decode(rec.Payload, rec.Meta); err == nil {
				return value, true
			}
			e.cache.Invalidate(key)
		}
	}

	var (
		rec    db.Record
		loaded bool
	)
	err := e.withRetry(ctx, "read", func() error {
		var gerr error
		rec, loaded, gerr = e.store.Get(key)
		return gerr
	})
	if err != nil || !loaded {
		return nil, false
	}

	value, err := e.codec.Decode(rec.Payload, rec.Meta)
	if err != nil {
		log.Debugf("skipped unreadable record %s: %v", key, err)
		return nil, false
	}
	return value, true
}

// matchesFilter verifies a decoded value against every filter field.
// Index candidates still need this check: non-scalar filter fields cannot
// narrow the candidate set, and full scans arrive unfiltered. Scalar
// fields compare by canonical form, everything else by deep equality.
func matchesFilter(value interface{}, filter map[string]interface{}) bool {
	if len(filter) == 0 {
		return true
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	for field, want := range filter {
		got, ok := obj[field]
		if !ok {
			return false
		}
		wantCanon, wantScalar := index.CanonicalValue(want)
		gotCanon, gotScalar := index.CanonicalValue(got)
		if wantScalar != gotScalar {
			return false
		}
		if wantScalar {
			if wantCanon != gotCanon {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Health Target
// --------------------------------------------------------------------------

// healthTarget adapts the engine's public API for the health monitor's
// synthetic round trips, so self-tests exercise the same code paths real
// clients use.
type healthTarget struct {
	engine *Engine
}

func (t healthTarget) Set(ctx context.Context, key string, value interface{}) error {
	_, err := t.engine.Set(ctx, key, value, nil)
	return err
}

func (t healthTarget) Get(ctx context.Context, key string) (interface{}, error) {
	return t.engine.Get(ctx, key)
}

func (t healthTarget) Delete(ctx context.Context, key string) error {
	_, err := t.engine.Delete(ctx, key)
	return err
}
