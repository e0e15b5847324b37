package cedar

import (
	"github.com/arbordb/arbor/lib/db"
	dbtesting "github.com/arbordb/arbor/lib/db/testing"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunRecordDBTests(t, "CedarDB", func() db.RecordDB {
		database, err := NewCedarDB(&DBOptions{Path: ":memory:"})
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		return database
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunRecordDBBenchmarks(t, "CedarDB", func() db.RecordDB {
		database, err := NewCedarDB(&DBOptions{Path: ":memory:"})
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		return database
	})
}
