package internal

import (
	"github.com/arbordb/arbor/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Each shard owns an independent concurrent map plus its own payload byte
// counter so that bookkeeping never becomes a global contention point.
type Shard struct {
	Data         *xsync.MapOf[string, db.Record] // Map of stored records
	PayloadBytes atomic.Int64                    // Sum of payload sizes in this shard
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, db.Record](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard(hash uint64, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(hash>>7)%uint64(len(shards))]
}
