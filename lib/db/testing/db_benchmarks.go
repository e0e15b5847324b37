package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arbordb/arbor/lib/db"
)

// RunRecordDBBenchmarks runs all benchmarks for a record database implementation
func RunRecordDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory())
	})

	b.Run("PutLargePayload", func(b *testing.B) {
		benchmarkPutLargePayload(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Remove", func(b *testing.B) {
		benchmarkRemove(b, factory())
	})

	b.Run("Contains", func(b *testing.B) {
		benchmarkContains(b, factory())
	})

	b.Run("Contains(not)", func(b *testing.B) {
		benchmarkContainsNot(b, factory())
	})

	b.Run("Touch", func(b *testing.B) {
		benchmarkTouch(b, factory())
	})

	b.Run("ScanKeys", func(b *testing.B) {
		benchmarkScanKeys(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation
func benchmarkPut(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			payload := []byte(fmt.Sprintf("test-payload-%d", counter))
			_ = database.Put(key, makeRecord(payload, 1))
			counter++
		}
	})
}

// Benchmark for Put operation with existing keys
func benchmarkPutExisting(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	// Prepare data
	numKeys := b.N
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			payload := []byte(fmt.Sprintf("test-payload-%d", counter))
			_ = database.Put(key, makeRecord(payload, 2))
			counter++
		}
	})
}

// Benchmark for Put operation with large payloads
func benchmarkPutLargePayload(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			largePayload := make([]byte, 1*1024*1024) // 1MB
			_ = database.Put(key, makeRecord(largePayload, 1))
			counter++
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureGet)

	// Prepare data
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			_, _, _ = database.Get(key)
			counter++
		}
	})
}

// Parallel benchmarking for Remove operation
func benchmarkRemove(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureRemove)

	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare data
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(keys[i], makeRecord(payload, 1))
	}

	// Counter for atomic access
	var counter int64

	// Reset timer since we were doing setup
	b.ResetTimer()

	// Run parallel remove operations
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys
			_, _ = database.Remove(keys[idx])
		}
	})
}

// Parallel benchmarking for Contains operation (with key miss)
func benchmarkContainsNot(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	const key = "test-key"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = database.Contains(key)
		}
	})
}

// Parallel benchmarking for Contains operation
func benchmarkContains(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	// Prepare data
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			_, _ = database.Contains(key)
			counter++
		}
	})
}

// Parallel benchmarking for Touch operation
func benchmarkTouch(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureTouch)

	// Prepare data
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	now := time.Now()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			_ = database.Touch(key, now)
			counter++
		}
	})
}

// Benchmark for ScanKeys with a prefix pattern
func benchmarkScanKeys(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureScan)

	// Prepare data with a few distinct prefixes
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("prefix-%d:key-%d", i%10, i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = database.ScanKeys(fmt.Sprintf("prefix-%d:*", i%10))
	}
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as they typically
// require exclusive access to the entire database
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureSnapshot)

	// Create a database with some data
	numEntries := 10000
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(key, makeRecord(payload, 1))
	}

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			_ = database.Save(&buf)
		}
	})

	// Prepare a data buffer for the Load benchmark
	var loadBuf bytes.Buffer
	_ = database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB := factory()
			defer loadDB.Close()
			_ = loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.RecordDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)
	requireFeature(b, database, db.FeatureGet)
	requireFeature(b, database, db.FeatureRemove)

	// Number of pre-populated keys
	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare initial data
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("test-key-%d", i)
		payload := []byte(fmt.Sprintf("test-payload-%d", i))
		_ = database.Put(keys[i], makeRecord(payload, 1))
	}

	// Counter for atomic access
	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// Local counter for each goroutine
		localCounter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			// Get a somewhat random index
			idx := int(atomic.AddInt64(&counter, 1)-1) % numKeys

			// For every 10th operation, use a completely new key
			var key string
			if localCounter%10 == 0 {
				key = fmt.Sprintf("new-key-%d", localCounter)
			} else {
				key = keys[idx]
			}

			// Random operation mix: mostly reads, some writes, few removes
			switch r := rnd.Float32(); {
			case r < 0.6: // Get
				_, _, _ = database.Get(key)
			case r < 0.9: // Put
				payload := []byte(fmt.Sprintf("mixed-payload-%d", localCounter))
				_ = database.Put(key, makeRecord(payload, uint64(localCounter)))
			default: // Remove
				_, _ = database.Remove(key)
			}

			localCounter++
		}
	})
}
