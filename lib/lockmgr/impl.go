package lockmgr

import (
	"sync"

	"github.com/arbordb/arbor/lib/db/util"
)

type stripedLocker struct {
	seed    uint64
	stripes []sync.Mutex
}

// NewKeyLocker creates a striped key locker. The stripe count is rounded
// up to the next power of two so stripe selection is a mask instead of a
// modulo; non-positive counts select the default.
func NewKeyLocker(stripes int) IKeyLocker {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &stripedLocker{
		seed:    util.GenerateSeed(),
		stripes: make([]sync.Mutex, nextPowerOfTwo(stripes)),
	}
}

// stripeFor maps a key to its stripe. Keys on the same stripe serialize
// against each other, which is harmless for correctness and keeps the
// memory footprint fixed regardless of the key space.
func (l *stripedLocker) stripeFor(key string) *sync.Mutex {
	return &l.stripes[util.HashString(key, l.seed)&uint64(len(l.stripes)-1)]
}

func (l *stripedLocker) Lock(key string) {
	l.stripeFor(key).Lock()
}

func (l *stripedLocker) Unlock(key string) {
	l.stripeFor(key).Unlock()
}
