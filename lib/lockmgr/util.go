package lockmgr

// defaultStripes balances contention against footprint: enough stripes
// that unrelated keys rarely collide, few enough that the locker stays
// cheap to allocate per engine.
const defaultStripes = 128

// nextPowerOfTwo rounds n up to the next power of two
func nextPowerOfTwo(n int) int {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
