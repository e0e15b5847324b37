package linden

import (
	"github.com/arbordb/arbor/lib/db"
	dbtesting "github.com/arbordb/arbor/lib/db/testing"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunRecordDBTests(t, "LindenDB", func() db.RecordDB {
		return NewLindenDB(nil)
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunRecordDBBenchmarks(t, "LindenDB", func() db.RecordDB {
		return NewLindenDB(nil)
	})
}
