package linden

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arbordb/arbor/lib/db"
)

func testRecord(payload string) db.Record {
	now := time.Now()
	return db.Record{
		Payload: []byte(payload),
		Meta: db.Metadata{
			OriginalSize:   len(payload),
			Size:           len(payload),
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
		},
	}
}

func TestLoadRejectsInvalidSnapshots(t *testing.T) {
	source := NewLindenDB(nil)
	defer source.Close()

	for i := 0; i < 10; i++ {
		if err := source.Put(fmt.Sprintf("key-%d", i), testRecord(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var snapshot bytes.Buffer
	if err := source.Save(&snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty input", nil},
		{"wrong magic", append([]byte("NOTADB\x00\x00"), snapshot.Bytes()[8:]...)},
		{"truncated header", snapshot.Bytes()[:5]},
		{"truncated body", snapshot.Bytes()[:snapshot.Len()/2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := NewLindenDB(nil)
			defer target.Close()

			if err := target.Load(bytes.NewReader(tc.data)); err == nil {
				t.Error("expected Load to fail, got nil")
			}
		})
	}

	// wrong magic specifically must surface as a corrupt record error
	target := NewLindenDB(nil)
	defer target.Close()
	bad := append([]byte("NOTADB\x00\x00"), snapshot.Bytes()[8:]...)
	if err := target.Load(bytes.NewReader(bad)); !errors.Is(err, db.ErrCorruptRecord) {
		t.Errorf("expected CorruptRecord for magic mismatch, got %v", err)
	}
}

func TestLoadPreservesSeed(t *testing.T) {
	source := NewLindenDB(&DBOptions{NumShards: 4})
	defer source.Close()

	numKeys := 500
	for i := 0; i < numKeys; i++ {
		if err := source.Put(fmt.Sprintf("seed-key-%d", i), testRecord(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var snapshot bytes.Buffer
	if err := source.Save(&snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// load into a database with a different shard count: the stored seed
	// must still route every key to the shard it is queried from
	target := NewLindenDB(&DBOptions{NumShards: 7})
	defer target.Close()
	if err := target.Load(&snapshot); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if target.Len() != numKeys {
		t.Fatalf("expected %d keys after load, got %d", numKeys, target.Len())
	}
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("seed-key-%d", i)
		rec, loaded, err := target.Get(key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !loaded {
			t.Fatalf("key %s not found after load", key)
		}
		expected := fmt.Sprintf("payload-%d", i)
		if string(rec.Payload) != expected {
			t.Errorf("expected payload %s, got %s", expected, rec.Payload)
		}
	}
	if target.PayloadBytes() != source.PayloadBytes() {
		t.Errorf("payload byte accounting diverged after load: %d != %d",
			target.PayloadBytes(), source.PayloadBytes())
	}
}

func TestGetInfo(t *testing.T) {
	database := NewLindenDB(&DBOptions{NumShards: 4})
	defer database.Close()

	numKeys := 200
	for i := 0; i < numKeys; i++ {
		if err := database.Put(fmt.Sprintf("info-key-%d", i), testRecord(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	info := database.GetInfo()

	if info.DbType != db.ImplLinden {
		t.Errorf("expected db type %s, got %s", db.ImplLinden, info.DbType)
	}
	if info.Keys != numKeys {
		t.Errorf("expected %d keys, got %d", numKeys, info.Keys)
	}
	if info.PayloadBytes <= 0 {
		t.Errorf("expected positive payload bytes, got %d", info.PayloadBytes)
	}
	if len(info.SupportedFeatures) == 0 {
		t.Error("expected supported features to be reported")
	}
	if info.Metadata == nil {
		t.Error("expected implementation metadata to be reported")
	}
}

func TestSupportsFeature(t *testing.T) {
	database := NewLindenDB(nil)
	defer database.Close()

	supported := []db.Feature{
		db.FeaturePut, db.FeatureGet, db.FeatureRemove,
		db.FeatureScan, db.FeatureTouch, db.FeatureSnapshot,
	}
	for _, feature := range supported {
		if !database.SupportsFeature(feature) {
			t.Errorf("expected feature %s to be supported", feature)
		}
	}

	if database.SupportsFeature(db.FeatureDurable) {
		t.Error("in-memory database must not report itself as durable")
	}

	// combined feature check
	if !database.SupportsFeature(db.FeaturePut | db.FeatureGet | db.FeatureScan) {
		t.Error("expected combined feature check to pass")
	}
	if database.SupportsFeature(db.FeaturePut | db.FeatureDurable) {
		t.Error("combined check including an unsupported feature must fail")
	}
}

func TestShardCountFallback(t *testing.T) {
	// invalid shard counts fall back to the CPU-based default
	for _, n := range []int{0, -3} {
		database := NewLindenDB(&DBOptions{NumShards: n})
		if err := database.Put("key", testRecord("payload")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, loaded, _ := database.Get("key"); !loaded {
			t.Errorf("database with NumShards=%d not functional", n)
		}
		database.Close()
	}
}
