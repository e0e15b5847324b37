package lockmgr

// IKeyLocker serializes operations on individual keys.
type IKeyLocker interface {
	// Lock acquires the exclusive lock covering the given key.
	// It blocks until the lock is available.
	Lock(key string)

	// Unlock releases the exclusive lock covering the given key.
	// It must only be called by the current holder of that lock.
	Unlock(key string)
}
