package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/arbordb/arbor/lib/db"
)

// DBFactory is a function that creates a new instance of a RecordDB implementation
type DBFactory func() db.RecordDB

// RunRecordDBTests runs a comprehensive test suite for a RecordDB implementation.
func RunRecordDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("Contains", func(t *testing.T) {
			testContains(t, factory())
		})

		t.Run("Touch", func(t *testing.T) {
			testTouch(t, factory())
		})

		t.Run("ScanKeys", func(t *testing.T) {
			testScanKeys(t, factory())
		})

		t.Run("ForEach", func(t *testing.T) {
			testForEach(t, factory())
		})

		t.Run("Accounting", func(t *testing.T) {
			testAccounting(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.RecordDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// makeRecord builds a record with plausible metadata around the payload
func makeRecord(payload []byte, version uint64) db.Record {
	now := time.Now()
	return db.Record{
		Payload: payload,
		Meta: db.Metadata{
			OriginalSize:   len(payload),
			Size:           len(payload),
			Version:        version,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
		},
	}
}

// mustPut fails the test if the write returns an error
func mustPut(t testing.TB, database db.RecordDB, key string, rec db.Record) {
	t.Helper()
	if err := database.Put(key, rec); err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
}

// mustGet fails the test if the read returns an error
func mustGet(t testing.TB, database db.RecordDB, key string) (db.Record, bool) {
	t.Helper()
	rec, loaded, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return rec, loaded
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testPayload1 := []byte("test-payload1")
	testPayload2 := []byte("test-payload2")

	mustPut(t, database, testKey, makeRecord(testPayload1, 1))

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result.Payload, testPayload1) {
		t.Errorf("Expected payload %s, got %s", testPayload1, result.Payload)
	}
	if result.Meta.Version != 1 {
		t.Errorf("Expected version 1, got %d", result.Meta.Version)
	}

	mustPut(t, database, testKey, makeRecord(testPayload2, 2))

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result.Payload, testPayload2) {
		t.Errorf("Expected payload %s, got %s", testPayload2, result.Payload)
	}
	if result.Meta.Version != 2 {
		t.Errorf("Expected version 2, got %d", result.Meta.Version)
	}

	_, exists = mustGet(t, database, "nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}

	// Get must return a copy, not a reference to the stored payload
	retrieved, _ := mustGet(t, database, testKey)
	retrieved.Payload[0] = 'X'

	original, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrieved.Payload, original.Payload) {
		t.Errorf("Get should return a copy, not a reference to the stored payload")
	}

	// Put must copy the caller's buffer as well
	callerOwned := []byte("caller-owned-payload")
	mustPut(t, database, testKey, makeRecord(callerOwned, 3))
	callerOwned[0] = 'Y'

	result, _ = mustGet(t, database, testKey)
	if !bytes.Equal(result.Payload, []byte("caller-owned-payload")) {
		t.Errorf("Put should copy the payload, stored value changed to %s", result.Payload)
	}
}

func testRemove(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureRemove)

	testKey := "remove-test-key"

	mustPut(t, database, testKey, makeRecord([]byte("remove-test-payload"), 1))

	_, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}

	existed, err := database.Remove(testKey)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !existed {
		t.Errorf("Expected Remove to report the key existed")
	}

	_, exists = mustGet(t, database, testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after Remove", testKey)
	}

	// removing again must be a harmless no-op
	existed, err = database.Remove(testKey)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if existed {
		t.Errorf("Expected Remove on a missing key to report existed=false")
	}
}

func testContains(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureRemove)

	testKey := "contains-test-key"

	loaded, err := database.Contains(testKey)
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if loaded {
		t.Errorf("Expected Contains to return false for nonexistent key")
	}

	mustPut(t, database, testKey, makeRecord([]byte("contains-test-payload"), 1))

	loaded, err = database.Contains(testKey)
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !loaded {
		t.Errorf("Expected Contains to return true after Put")
	}

	if _, err := database.Remove(testKey); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	loaded, err = database.Contains(testKey)
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if loaded {
		t.Errorf("Expected Contains to return false after Remove")
	}
}

func testTouch(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureTouch)

	testKey := "touch-test-key"
	mustPut(t, database, testKey, makeRecord([]byte("touch-test-payload"), 1))

	before, _ := mustGet(t, database, testKey)

	at := time.Now().Add(time.Minute)
	for i := 0; i < 3; i++ {
		if err := database.Touch(testKey, at); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
	}

	after, _ := mustGet(t, database, testKey)
	if after.Meta.AccessCount != before.Meta.AccessCount+3 {
		t.Errorf("Expected access count %d, got %d", before.Meta.AccessCount+3, after.Meta.AccessCount)
	}
	if !after.Meta.LastAccessedAt.Equal(at) {
		t.Errorf("Expected last accessed at %v, got %v", at, after.Meta.LastAccessedAt)
	}
	if !bytes.Equal(after.Payload, before.Payload) {
		t.Errorf("Touch must not modify the payload")
	}

	// touching a missing key must not create it
	if err := database.Touch("touch-missing-key", at); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	loaded, err := database.Contains("touch-missing-key")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if loaded {
		t.Errorf("Touch on a missing key must not create it")
	}
}

func testScanKeys(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureScan)

	keys := []string{
		"user:1", "user:2", "user:3",
		"session:1", "session:2",
		"config",
	}
	for i, key := range keys {
		mustPut(t, database, key, makeRecord([]byte(fmt.Sprintf("payload-%d", i)), 1))
	}

	tests := []struct {
		name     string
		pattern  string
		expected []string
	}{
		{"all keys", "*", keys},
		{"prefix", "user:*", []string{"user:1", "user:2", "user:3"}},
		{"suffix", "*:1", []string{"user:1", "session:1"}},
		{"middle", "s*:2", []string{"session:2"}},
		{"exact", "config", []string{"config"}},
		{"no match", "missing:*", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := database.ScanKeys(tc.pattern)
			if err != nil {
				t.Fatalf("ScanKeys(%q) failed: %v", tc.pattern, err)
			}

			expected := append([]string(nil), tc.expected...)
			sort.Strings(expected)
			sort.Strings(result)

			if len(result) != len(expected) {
				t.Fatalf("ScanKeys(%q): expected %v, got %v", tc.pattern, expected, result)
			}
			for i := range expected {
				if result[i] != expected[i] {
					t.Errorf("ScanKeys(%q): expected %v, got %v", tc.pattern, expected, result)
					break
				}
			}
		})
	}
}

func testForEach(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("foreach-key-%d", i)
		mustPut(t, database, key, makeRecord([]byte(fmt.Sprintf("foreach-payload-%d", i)), 1))
	}

	// full iteration sees every entry exactly once
	seen := make(map[string]int)
	err := database.ForEach(func(key string, rec db.Record) bool {
		seen[key]++
		return true
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if len(seen) != numKeys {
		t.Errorf("Expected %d keys, saw %d", numKeys, len(seen))
	}
	for key, count := range seen {
		if count != 1 {
			t.Errorf("Key %s visited %d times", key, count)
		}
	}

	// returning false stops the iteration
	visited := 0
	err = database.ForEach(func(string, db.Record) bool {
		visited++
		return visited < 10
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if visited != 10 {
		t.Errorf("Expected iteration to stop after 10 entries, visited %d", visited)
	}

	// mutating the callback record must not affect the store
	var probeKey string
	err = database.ForEach(func(key string, rec db.Record) bool {
		probeKey = key
		if len(rec.Payload) > 0 {
			rec.Payload[0] = 'X'
		}
		return false
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	rec, _ := mustGet(t, database, probeKey)
	if len(rec.Payload) > 0 && rec.Payload[0] == 'X' {
		t.Errorf("ForEach must pass a copy, stored payload was mutated")
	}
}

func testAccounting(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureRemove)

	if database.Len() != 0 {
		t.Errorf("Expected empty database, got Len=%d", database.Len())
	}
	if database.PayloadBytes() != 0 {
		t.Errorf("Expected 0 payload bytes, got %d", database.PayloadBytes())
	}

	numKeys := 50
	payloadSize := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("accounting-key-%d", i)
		mustPut(t, database, key, makeRecord(make([]byte, payloadSize), 1))
	}

	if database.Len() != numKeys {
		t.Errorf("Expected Len=%d, got %d", numKeys, database.Len())
	}
	expected := int64(numKeys * payloadSize)
	if database.PayloadBytes() != expected {
		t.Errorf("Expected %d payload bytes, got %d", expected, database.PayloadBytes())
	}

	// overwriting with a larger payload adjusts the delta
	mustPut(t, database, "accounting-key-0", makeRecord(make([]byte, payloadSize*3), 2))
	expected += int64(payloadSize * 2)
	if database.PayloadBytes() != expected {
		t.Errorf("Expected %d payload bytes after overwrite, got %d", expected, database.PayloadBytes())
	}
	if database.Len() != numKeys {
		t.Errorf("Overwrite must not change Len, got %d", database.Len())
	}

	// removal releases the bytes
	if _, err := database.Remove("accounting-key-0"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	expected -= int64(payloadSize * 3)
	if database.PayloadBytes() != expected {
		t.Errorf("Expected %d payload bytes after remove, got %d", expected, database.PayloadBytes())
	}
	if database.Len() != numKeys-1 {
		t.Errorf("Expected Len=%d after remove, got %d", numKeys-1, database.Len())
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureSnapshot)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalPayloads := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		payload := []byte(fmt.Sprintf("save-load-test-payload-%d", i))
		originalKeys[i] = key
		originalPayloads[i] = payload

		mustPut(t, database, key, makeRecord(payload, uint64(i+1)))
	}

	// one record with every metadata field populated
	metaKey := "save-load-meta-key"
	metaRec := makeRecord([]byte("meta-payload"), 7)
	metaRec.Meta.OriginalSize = 4096
	metaRec.Meta.Compressed = true
	metaRec.Meta.Encrypted = true
	metaRec.Meta.Algorithm = db.TierLZ77
	metaRec.Meta.Checksum = 0xdeadbeefcafe
	metaRec.Meta.AccessCount = 42
	mustPut(t, database, metaKey, metaRec)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]

		rec, exists := mustGet(t, database2, key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(rec.Payload, originalPayloads[i]) {
			t.Errorf("Payload mismatch for key %s: expected %s, got %s", key, originalPayloads[i], rec.Payload)
		}
		if rec.Meta.Version != uint64(i+1) {
			t.Errorf("Version mismatch for key %s: expected %d, got %d", key, i+1, rec.Meta.Version)
		}
	}

	// verify full metadata fidelity on the probe record
	loadedMeta, exists := mustGet(t, database2, metaKey)
	if !exists {
		t.Fatalf("Key %s not found after Load", metaKey)
	}
	m := loadedMeta.Meta
	if m.OriginalSize != metaRec.Meta.OriginalSize ||
		m.Compressed != metaRec.Meta.Compressed ||
		m.Encrypted != metaRec.Meta.Encrypted ||
		m.Algorithm != metaRec.Meta.Algorithm ||
		m.Checksum != metaRec.Meta.Checksum ||
		m.Version != metaRec.Meta.Version ||
		m.AccessCount != metaRec.Meta.AccessCount {
		t.Errorf("Metadata mismatch after Load:\nExpected: %+v\nResult: %+v", metaRec.Meta, m)
	}
	if !m.CreatedAt.Equal(metaRec.Meta.CreatedAt) || !m.UpdatedAt.Equal(metaRec.Meta.UpdatedAt) {
		t.Errorf("Timestamp mismatch after Load:\nExpected: %v / %v\nResult: %v / %v",
			metaRec.Meta.CreatedAt, metaRec.Meta.UpdatedAt, m.CreatedAt, m.UpdatedAt)
	}

	// the original database must be unaffected by Save
	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]

		rec, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Key %s not found in original database", key)
			continue
		}
		if !bytes.Equal(rec.Payload, originalPayloads[i]) {
			t.Errorf("Payload mismatch in original database for key %s", key)
		}
	}
}

func testEdgeCases(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)

	emptyPayloadKey := "empty-payload-key"
	mustPut(t, database, emptyPayloadKey, makeRecord([]byte{}, 1))

	result, exists := mustGet(t, database, emptyPayloadKey)
	if !exists {
		t.Errorf("Key for empty payload not found after Put")
	} else if len(result.Payload) != 0 {
		t.Errorf("Empty payload mismatch: %v", result.Payload)
	}

	nilPayloadKey := "nil-payload-key"
	mustPut(t, database, nilPayloadKey, makeRecord(nil, 1))

	result, exists = mustGet(t, database, nilPayloadKey)
	if !exists {
		t.Errorf("Key for nil payload not found after Put")
	} else if len(result.Payload) != 0 {
		t.Errorf("Nil payload resulted in non-empty payload: %v", result.Payload)
	}

	unicodeKey := "schlüssel-键-🔑"
	unicodePayload := []byte("unicode payload")
	mustPut(t, database, unicodeKey, makeRecord(unicodePayload, 1))

	result, exists = mustGet(t, database, unicodeKey)
	if !exists {
		t.Errorf("Unicode key not found after Put")
	} else if !bytes.Equal(result.Payload, unicodePayload) {
		t.Errorf("Payload mismatch for unicode key")
	}

	if !t.Failed() {

		longKey := string(bytes.Repeat([]byte("k"), 250))
		longKeyPayload := []byte("payload for long key")

		mustPut(t, database, longKey, makeRecord(longKeyPayload, 1))

		result, exists = mustGet(t, database, longKey)
		if !exists {
			t.Errorf("Long key not found after Put")
		} else if !bytes.Equal(result.Payload, longKeyPayload) {
			t.Errorf("Payload mismatch for long key")
		}

		largePayloadKey := "large-payload-key"
		largePayload := make([]byte, 8*1024*1024)
		for i := range largePayload {
			largePayload[i] = byte(i % 256)
		}

		mustPut(t, database, largePayloadKey, makeRecord(largePayload, 1))

		result, exists = mustGet(t, database, largePayloadKey)
		if !exists {
			t.Errorf("Key for large payload not found after Put")
		} else if !bytes.Equal(result.Payload, largePayload) {

			headMismatch := !bytes.Equal(result.Payload[:10], largePayload[:10])
			tailMismatch := !bytes.Equal(result.Payload[len(result.Payload)-10:], largePayload[len(largePayload)-10:])
			if headMismatch || tailMismatch || len(result.Payload) != len(largePayload) {
				t.Errorf("Large payload mismatch: Head mismatch=%v, Tail mismatch=%v, Size mismatch=%v",
					headMismatch, tailMismatch, len(result.Payload) != len(largePayload))
			}
		}
	}
}

func testCollisionHandling(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureRemove)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		mustPut(t, database, key, makeRecord([]byte(fmt.Sprintf("payload-%d", i)), 1))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedPayload := []byte(fmt.Sprintf("payload-%d", i))

		rec, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}

		if !bytes.Equal(rec.Payload, expectedPayload) {
			t.Errorf("Payload for key %s does not match: expected %s, got %s",
				key, expectedPayload, rec.Payload)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		key := fmt.Sprintf("%s%d", prefix, i)
		if _, err := database.Remove(key); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := mustGet(t, database, key)

		if i%2 == 0 {
			if exists {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !exists {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}
}

func testRealisticUsage(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureRemove)

	type operation struct {
		op      string
		key     string
		payload []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "put"
		case 7, 8:
			op = "get"
		case 9:
			op = "remove"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var payload []byte
		if op == "put" {
			payloadSize := 64
			if i%10 == 0 {
				payloadSize = 1024
			}
			payload = make([]byte, payloadSize)
			for j := 0; j < payloadSize; j++ {
				payload[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, payload}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				switch op.op {
				case "put":
					_ = database.Put(op.key, makeRecord(op.payload, uint64(i)))
				case "get":
					_, _, _ = database.Get(op.key)
				case "remove":
					_, _ = database.Remove(op.key)
				}
			}
		}(w)
	}

	wg.Wait()

	// verify that the database settles into a consistent state: two
	// sequential passes over all keys must agree
	var (
		keyStatus = make(map[string]bool)
		keyValues = make(map[string][]byte)
	)

	for key := range allKeys {
		rec, exists := mustGet(t, database, key)
		keyStatus[key] = exists
		if exists {
			keyValues[key] = rec.Payload
		}
	}

	for key := range allKeys {
		rec, exists := mustGet(t, database, key)

		if exists != keyStatus[key] {
			t.Errorf("Consistency error: Key %s existence changed during verification", key)
			continue
		}

		if exists && !bytes.Equal(rec.Payload, keyValues[key]) {
			t.Errorf("Payload mismatch for key %s between verification passes", key)
		}
	}
}
