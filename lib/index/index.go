package index

import (
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Value Canonicalization
// --------------------------------------------------------------------------

// CanonicalValue maps an indexable scalar to its canonical string form.
// Strings and numbers are the only indexed types; the prefix keeps the
// string "1" distinct from the number 1. Numeric filter values supplied by
// callers as Go integers normalize to the float64 form the JSON decoder
// produces, so both sides of a lookup agree.
func CanonicalValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return "s:" + x, true
	case float64:
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "n:" + strconv.FormatFloat(float64(rv.Int()), 'g', -1, 64), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "n:" + strconv.FormatFloat(float64(rv.Uint()), 'g', -1, 64), true
	case reflect.Float32:
		return "n:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	}

	return "", false
}

// scalarFields extracts the indexable top-level fields of a decoded value.
// Only object values contribute fields; arrays and scalars index nothing.
func scalarFields(value interface{}) map[string]string {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}

	fields := make(map[string]string, len(obj))
	for name, raw := range obj {
		if cv, ok := CanonicalValue(raw); ok {
			fields[name] = cv
		}
	}
	return fields
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

// Index maintains field-value postings for equality queries over the
// top-level scalar fields of stored objects. It holds two views that must
// mutate together: the forward map (field -> value -> keys) serving
// lookups, and a reverse map (key -> field -> value) so overwrites and
// deletes can drop stale postings without re-reading the stored value.
type Index struct {
	mu      sync.RWMutex
	forward map[string]map[string]map[string]struct{}
	reverse map[string]map[string]string

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an empty index
func New() *Index {
	return &Index{
		forward: make(map[string]map[string]map[string]struct{}),
		reverse: make(map[string]map[string]string),
		stop:    make(chan struct{}),
	}
}

// OnWrite records the indexable fields of the value just stored under the
// key. Postings for fields that disappeared or changed value since the
// previous write of the same key are dropped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) OnWrite(key string, value interface{}) {
	fields := scalarFields(value)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// drop postings whose field disappeared or changed value
	for field, oldValue := range idx.reverse[key] {
		if newValue, ok := fields[field]; ok && newValue == oldValue {
			continue
		}
		if keys, ok := idx.forward[field][oldValue]; ok {
			delete(keys, key)
		}
	}

	if len(fields) == 0 {
		delete(idx.reverse, key)
		return
	}

	for field, value := range fields {
		byValue, ok := idx.forward[field]
		if !ok {
			byValue = make(map[string]map[string]struct{})
			idx.forward[field] = byValue
		}
		keys, ok := byValue[value]
		if !ok {
			keys = make(map[string]struct{})
			byValue[value] = keys
		}
		keys[key] = struct{}{}
	}
	idx.reverse[key] = fields
}

// Remove drops all postings for the key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, ok := idx.reverse[key]
	if !ok {
		return
	}
	for field, value := range old {
		if keys, ok := idx.forward[field][value]; ok {
			delete(keys, key)
		}
	}
	delete(idx.reverse, key)
}

// FindByField returns the keys whose stored value carries the given scalar
// field value, sorted. A non-scalar value yields nil since such fields are
// never indexed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) FindByField(field string, value interface{}) []string {
	cv, ok := CanonicalValue(value)
	if !ok {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	keys := idx.forward[field][cv]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// QueryKeys intersects the postings for the scalar fields of an equality
// filter and returns the candidate keys, sorted. The bool reports whether
// at least one filter field was served from the index; when it is false the
// caller has to fall back to a full scan. Candidates still need verification
// against the complete filter after materializing, because non-scalar
// filter fields cannot narrow the set here.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) QueryKeys(filter map[string]interface{}) ([]string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result map[string]struct{}
	served := false

	for field, raw := range filter {
		cv, ok := CanonicalValue(raw)
		if !ok {
			continue
		}
		served = true

		// a missing field or value set means no stored object currently
		// carries this scalar value, so the intersection is empty
		set := idx.forward[field][cv]
		if result == nil {
			result = make(map[string]struct{}, len(set))
			for k := range set {
				result[k] = struct{}{}
			}
		} else {
			for k := range result {
				if _, in := set[k]; !in {
					delete(result, k)
				}
			}
		}
		if len(result) == 0 {
			break
		}
	}

	if !served {
		return nil, false
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, true
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// Reset drops all postings, used when the underlying store is replaced
// wholesale and the index is rebuilt from scratch.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.forward = make(map[string]map[string]map[string]struct{})
	idx.reverse = make(map[string]map[string]string)
}

// GC removes empty key-sets and empty field maps left behind by Remove and
// OnWrite, and returns the number of pruned containers.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) GC() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pruned := 0
	for field, byValue := range idx.forward {
		for value, keys := range byValue {
			if len(keys) == 0 {
				delete(byValue, value)
				pruned++
			}
		}
		if len(byValue) == 0 {
			delete(idx.forward, field)
			pruned++
		}
	}
	return pruned
}

// StartGC launches a background loop that runs GC at the given interval
// until Close is called. A non-positive interval disables the loop.
func (idx *Index) StartGC(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-idx.stop:
				return
			case <-ticker.C:
				idx.GC()
			}
		}
	}()
}

// Close stops the background GC loop. It is safe to call multiple times.
func (idx *Index) Close() {
	idx.stopOnce.Do(func() { close(idx.stop) })
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot of the index shape
type Stats struct {
	Fields  int `json:"fields"`
	Values  int `json:"values"`
	Entries int `json:"entries"`
}

// Stats returns a snapshot of the index shape: the number of indexed
// fields, distinct field values, and posted key entries.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{Fields: len(idx.forward)}
	for _, byValue := range idx.forward {
		s.Values += len(byValue)
		for _, keys := range byValue {
			s.Entries += len(keys)
		}
	}
	return s
}
