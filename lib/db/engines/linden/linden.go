package linden

import (
	"bufio"
	"encoding/binary"
	"github.com/arbordb/arbor/lib/db"
	"github.com/arbordb/arbor/lib/db/engines/linden/internal"
	"github.com/arbordb/arbor/lib/db/util"
	"io"
	"runtime"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum      = "LINDENDB" // Snapshot file format identifier
	lindenVersion = 1          // Snapshot format version

	flagCompressed = uint8(1 << 0) // Metadata flag bits in the snapshot format
	flagEncrypted  = uint8(1 << 1)
)

// --------------------------------------------------------------------------
// Core Linden database structure
// --------------------------------------------------------------------------

// lindenImpl implements an in-memory record database with sharded data
type lindenImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for the shard hash function
	shards    []*internal.Shard // Array of shards
}

// DBOptions configures the lindenImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto, based on CPU count)
}

// DefaultOptions returns the default lindenImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewLindenDB creates a new LindenDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewLindenDB(opts *DBOptions) db.RecordDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	// Generate a seed for this lindenImpl instance
	seed := util.GenerateSeed()

	// Create shards
	shards := make([]*internal.Shard, numShards)
	for i := 0; i < numShards; i++ {
		shards[i] = internal.NewShard()
	}

	return &lindenImpl{
		numShards: numShards,
		seed:      seed,
		shards:    shards,
	}
}

// shardFor picks the shard responsible for the given key.
// The database seed is applied so that shard distribution differs between
// lindenImpl instances.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, linden.seed), linden.shards)
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put inserts or updates the record stored under the given key.
// If the key already exists, the old record is overwritten.
// The record is copied on insert, the caller keeps ownership of its buffers.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Put(key string, rec db.Record) error {
	shard := linden.shardFor(key)

	// Copy the record to prevent shared buffer mutation
	recCopy := rec.Clone()

	// Use Compute so the byte accounting delta is derived atomically
	// with the map update
	var delta int64
	shard.Data.Compute(key, func(old db.Record, loaded bool) (db.Record, bool) {
		delta = int64(len(recCopy.Payload))
		if loaded {
			delta -= int64(len(old.Payload))
		}
		return recCopy, false
	})
	shard.PayloadBytes.Add(delta)

	return nil
}

// Remove deletes the record stored under the given key.
// The boolean return value indicates whether the key existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Remove(key string) (bool, error) {
	shard := linden.shardFor(key)

	var (
		existed bool
		freed   int64
	)
	shard.Data.Compute(key, func(old db.Record, loaded bool) (db.Record, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		existed = true
		freed = int64(len(old.Payload))
		return old, true
	})
	if existed {
		shard.PayloadBytes.Add(-freed)
	}

	return existed, nil
}

// Touch updates the access bookkeeping of the record stored under the given
// key. Touch on a missing key is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Touch(key string, at time.Time) error {
	shard := linden.shardFor(key)

	shard.Data.Compute(key, func(old db.Record, loaded bool) (db.Record, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		old.Meta.AccessCount++
		old.Meta.LastAccessedAt = at
		return old, false
	})

	return nil
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the record for an exact key.
// The boolean indicates whether a record for the key was found.
// The returned record is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Get(key string) (db.Record, bool, error) {
	shard := linden.shardFor(key)

	rec, ok := shard.Data.Load(key)
	if !ok {
		return db.Record{}, false, nil
	}

	// case valid data -> copy record
	return rec.Clone(), true, nil
}

// Contains checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Contains(key string) (bool, error) {
	shard := linden.shardFor(key)
	_, ok := shard.Data.Load(key)
	return ok, nil
}

// ScanKeys returns all keys matching the given glob pattern.
// The iteration is a fuzzy snapshot: keys written or removed while the scan
// runs may or may not be included.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) ScanKeys(pattern string) ([]string, error) {
	var keys []string

	// fast path: no filtering needed
	if util.MatchesAll(pattern) {
		for _, shard := range linden.shards {
			shard.Data.Range(func(key string, _ db.Record) bool {
				keys = append(keys, key)
				return true
			})
		}
		return keys, nil
	}

	re, err := util.CompilePattern(pattern)
	if err != nil {
		return nil, db.WrapError(db.ErrCInternal, "invalid scan pattern", err)
	}

	for _, shard := range linden.shards {
		shard.Data.Range(func(key string, _ db.Record) bool {
			if re.MatchString(key) {
				keys = append(keys, key)
			}
			return true
		})
	}

	return keys, nil
}

// ForEach calls fn for every stored key/record pair until fn returns false.
// The record passed to fn is a copy and safe to retain or modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) ForEach(fn func(key string, rec db.Record) bool) error {
	for _, shard := range linden.shards {
		stop := false
		shard.Data.Range(func(key string, rec db.Record) bool {
			if !fn(key, rec.Clone()) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) Len() int {
	n := 0
	for _, shard := range linden.shards {
		n += shard.Data.Size()
	}
	return n
}

// PayloadBytes returns the aggregate size of all stored payloads.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (linden *lindenImpl) PayloadBytes() int64 {
	var n int64
	for _, shard := range linden.shards {
		n += shard.PayloadBytes.Load()
	}
	return n
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// Concurrent reading and writing is allowed during the Save operation.
//
// Thread-safety: This function allows concurrent operations with all other
// functions except Load. It takes a fuzzy snapshot of the data without
// blocking modifications.
func (linden *lindenImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Collect snapshots of all shards
	type entryToSave struct {
		key string
		rec db.Record
	}

	var entries []entryToSave
	for _, shard := range linden.shards {
		shard.Data.Range(func(key string, rec db.Record) bool {
			entries = append(entries, entryToSave{key, rec.Clone()})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write snapshot version
	if err := binary.Write(bw, binary.LittleEndian, uint8(lindenVersion)); err != nil {
		return err
	}

	// Write seed
	if err := binary.Write(bw, binary.LittleEndian, linden.seed); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write entries
	for _, item := range entries {
		if err := writeRecord(bw, item.key, item.rec); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores a database from the reader
//
// Thread-safety: This function is not thread-safe and should not be called
// concurrently with any other operation.
func (linden *lindenImpl) Load(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return db.NewError(db.ErrCCorruptRecord, "invalid snapshot format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != lindenVersion {
		return db.NewErrorf(db.ErrCCorruptRecord, "unsupported snapshot version: %d (expected %d)", version, lindenVersion)
	}

	// Read seed
	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	// Recreate empty shards with the loaded seed
	shards := make([]*internal.Shard, linden.numShards)
	for i := 0; i < linden.numShards; i++ {
		shards[i] = internal.NewShard()
	}
	linden.shards = shards
	linden.seed = seed

	// Read entry count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// Read entries
	for i := uint64(0); i < count; i++ {
		key, rec, err := readRecord(br)
		if err != nil {
			return err
		}

		shard := linden.shardFor(key)
		shard.Data.Store(key, rec)
		shard.PayloadBytes.Add(int64(len(rec.Payload)))
	}

	return nil
}

// writeRecord writes one key/record pair in the snapshot wire format
func writeRecord(w io.Writer, key string, rec db.Record) error {
	// Write key (length prefixed)
	if err := binary.Write(w, binary.LittleEndian, uint16(len(key))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(key)); err != nil {
		return err
	}

	// Pack the bool metadata flags into one byte
	var flags uint8
	if rec.Meta.Compressed {
		flags |= flagCompressed
	}
	if rec.Meta.Encrypted {
		flags |= flagEncrypted
	}

	// Write metadata fields
	meta := rec.Meta
	for _, v := range []interface{}{
		flags,
		uint8(meta.Algorithm),
		uint32(meta.OriginalSize),
		meta.Checksum,
		timeToNano(meta.CreatedAt),
		timeToNano(meta.UpdatedAt),
		meta.Version,
		meta.AccessCount,
		timeToNano(meta.LastAccessedAt),
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// Write payload (length prefixed)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.Payload))); err != nil {
		return err
	}
	_, err := w.Write(rec.Payload)
	return err
}

// readRecord reads one key/record pair in the snapshot wire format
func readRecord(r io.Reader) (string, db.Record, error) {
	// Read key
	var keyLen uint16
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return "", db.Record{}, err
	}
	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return "", db.Record{}, err
	}

	// Read metadata fields
	var (
		flags        uint8
		algorithm    uint8
		originalSize uint32
		checksum     uint64
		createdAt    int64
		updatedAt    int64
		recVersion   uint64
		accessCount  uint64
		lastAccessed int64
	)
	for _, v := range []interface{}{
		&flags, &algorithm, &originalSize, &checksum,
		&createdAt, &updatedAt, &recVersion, &accessCount, &lastAccessed,
	} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return "", db.Record{}, err
		}
	}

	// Read payload (length prefixed)
	var payloadLen uint32
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return "", db.Record{}, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", db.Record{}, err
	}

	rec := db.Record{
		Payload: payload,
		Meta: db.Metadata{
			OriginalSize: int(originalSize),
			Compressed:   flags&flagCompressed != 0,
			Encrypted:    flags&flagEncrypted != 0,
			Algorithm:    db.CompressionTier(algorithm),
			Checksum:     checksum,
			CreatedAt:    nanoToTime(createdAt),
			UpdatedAt:    nanoToTime(updatedAt),
			Version:      recVersion,
			// Size always mirrors the stored payload length
			Size:           int(payloadLen),
			AccessCount:    accessCount,
			LastAccessedAt: nanoToTime(lastAccessed),
		},
	}

	return string(keyBytes), rec, nil
}

// timeToNano converts a timestamp for the snapshot format.
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

// --------------------------------------------------------------------------
// RecordDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (linden *lindenImpl) GetInfo() db.DatabaseInfo {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	wg := sync.WaitGroup{}
	wg.Add(len(linden.shards))

	// shard occupancy for distribution stats
	shardSizes := make([]float64, len(linden.shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range linden.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count := 0
			s.Data.Range(func(_ string, rec db.Record) bool {
				// track size in histogram
				histogram.AddSample(len(rec.Payload))

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})
			shardSizes[i] = float64(s.Data.Size())
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	// Metadata for this specific database implementation
	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		PayloadSizeMedian int                    `json:"payload_size_median"`
		PayloadSizeAvg    int                    `json:"payload_size_avg"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(linden.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		PayloadSizeMedian: histogram.MedianEstimate(),
		PayloadSizeAvg:    histogram.Average(),
		Info:              "Payload size values are sampled estimates and may vary depending on the database state.",
	}

	// features
	supportedFeatures := []db.Feature{
		db.FeaturePut, db.FeatureGet, db.FeatureRemove,
		db.FeatureScan, db.FeatureTouch, db.FeatureSnapshot,
	}

	return db.DatabaseInfo{
		Keys:              linden.Len(),
		PayloadBytes:      linden.PayloadBytes(),
		DbType:            db.ImplLinden,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific RecordDB feature
func (linden *lindenImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureGet |
		db.FeatureRemove |
		db.FeatureScan |
		db.FeatureTouch |
		db.FeatureSnapshot
	return supportedFeatures&feature == feature
}

// Close releases the database. The in-memory implementation holds no
// external resources, the method only exists to satisfy db.RecordDB.
func (linden *lindenImpl) Close() error {
	return nil
}
