package wal

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collectingSink records every consumed entry
type collectingSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *collectingSink) Consume(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *collectingSink) collected() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// failingSink rejects every entry
type failingSink struct {
	attempts atomic.Uint64
}

func (s *failingSink) Consume(Entry) error {
	s.attempts.Add(1)
	return errors.New("sink unavailable")
}

func TestLogAppendAssignsDenseIDs(t *testing.T) {
	l := New(nil)
	defer l.Close()

	for i := 1; i <= 10; i++ {
		id, err := l.Append(OpSet, fmt.Sprintf("key-%d", i), []byte("value"))
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		if id != uint64(i) {
			t.Errorf("Append() id = %d, want %d", id, i)
		}
	}

	entries := l.Entries()
	if len(entries) != 10 {
		t.Fatalf("Entries() returned %d entries, want 10", len(entries))
	}
	for i, e := range entries {
		if e.ID != uint64(i+1) {
			t.Errorf("entry %d has id %d, want %d", i, e.ID, i+1)
		}
		if e.Checksum == 0 {
			t.Errorf("entry %d has no checksum", i)
		}
	}
}

func TestLogAppendCopiesValue(t *testing.T) {
	l := New(nil)
	defer l.Close()

	value := []byte("original")
	if _, err := l.Append(OpSet, "key", value); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	value[0] = 'X'

	if got := string(l.Entries()[0].Value); got != "original" {
		t.Errorf("entry value = %q, want %q", got, "original")
	}
}

func TestLogPruneByRetention(t *testing.T) {
	l := New(&Options{Retention: time.Minute, MaxEntries: 100})
	defer l.Close()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		if _, err := l.Append(OpSet, fmt.Sprintf("old-%d", i), nil); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	// nothing ages out inside the window
	if dropped := l.Prune(base.Add(30 * time.Second)); dropped != 0 {
		t.Errorf("Prune() dropped %d entries inside the retention window", dropped)
	}

	// a write after the window prunes the stale prefix opportunistically
	current = base.Add(2 * time.Minute)
	if _, err := l.Append(OpSet, "fresh", nil); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d retained entries, want 1", len(entries))
	}
	if entries[0].Key != "fresh" {
		t.Errorf("retained entry key = %q, want %q", entries[0].Key, "fresh")
	}

	stats := l.Stats()
	if stats.Pruned != 5 {
		t.Errorf("Stats().Pruned = %d, want 5", stats.Pruned)
	}
	if stats.Appended != 6 {
		t.Errorf("Stats().Appended = %d, want 6", stats.Appended)
	}
}

func TestLogPruneByCap(t *testing.T) {
	l := New(&Options{Retention: time.Hour, MaxEntries: 100})
	defer l.Close()

	for i := 0; i < 150; i++ {
		if _, err := l.Append(OpSet, fmt.Sprintf("key-%d", i), nil); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	entries := l.Entries()
	if len(entries) != 100 {
		t.Fatalf("got %d retained entries, want 100", len(entries))
	}
	if entries[0].ID != 51 {
		t.Errorf("oldest retained id = %d, want 51", entries[0].ID)
	}
	if entries[len(entries)-1].ID != 150 {
		t.Errorf("newest retained id = %d, want 150", entries[len(entries)-1].ID)
	}
}

func TestLogSinkConsumption(t *testing.T) {
	sink := &collectingSink{}
	l := New(&Options{Sink: sink})

	for i := 0; i < 20; i++ {
		op := OpSet
		if i%5 == 4 {
			op = OpDelete
		}
		if _, err := l.Append(op, fmt.Sprintf("key-%d", i), []byte("v")); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	// Close drains the queue into the sink
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	got := sink.collected()
	if len(got) != 20 {
		t.Fatalf("sink consumed %d entries, want 20", len(got))
	}
	for i, e := range got {
		if e.ID != uint64(i+1) {
			t.Errorf("sink entry %d has id %d, want in-order delivery", i, e.ID)
		}
	}

	if wm := l.Watermark(); wm != 20 {
		t.Errorf("Watermark() = %d, want 20", wm)
	}
}

func TestLogSinkBacklogBlocksPrune(t *testing.T) {
	sink := &failingSink{}
	l := New(&Options{Retention: time.Millisecond, MaxEntries: 2, Sink: sink})
	defer l.Close()

	for i := 0; i < 10; i++ {
		if _, err := l.Append(OpSet, fmt.Sprintf("key-%d", i), nil); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	// wait until the sink has rejected everything
	deadline := time.Now().Add(5 * time.Second)
	for sink.attempts.Load() < 10 {
		if time.Now().After(deadline) {
			t.Fatalf("sink saw %d entries, want 10", sink.attempts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// every entry is expired and over cap, but none was consumed
	if dropped := l.Prune(time.Now().Add(time.Hour)); dropped != 0 {
		t.Errorf("Prune() dropped %d unconsumed entries", dropped)
	}
	if l.Len() != 10 {
		t.Errorf("Len() = %d, want 10 held entries", l.Len())
	}
	if l.Watermark() != 0 {
		t.Errorf("Watermark() = %d, want 0", l.Watermark())
	}
	if errs := l.Stats().SinkErrors; errs != 10 {
		t.Errorf("Stats().SinkErrors = %d, want 10", errs)
	}
}

func TestLogDumpRoundTrip(t *testing.T) {
	l := New(nil)
	defer l.Close()

	if _, err := l.Append(OpSet, "user:1", []byte(`{"name":"alice"}`)); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if _, err := l.Append(OpDelete, "user:2", nil); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := l.Dump(&buf); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	decoded, err := ReadEntries(&buf)
	if err != nil {
		t.Fatalf("ReadEntries() failed: %v", err)
	}

	want := l.Entries()
	if len(decoded) != len(want) {
		t.Fatalf("decoded %d entries, want %d", len(decoded), len(want))
	}
	for i := range want {
		if decoded[i].ID != want[i].ID ||
			decoded[i].Op != want[i].Op ||
			decoded[i].Key != want[i].Key ||
			!bytes.Equal(decoded[i].Value, want[i].Value) ||
			decoded[i].Timestamp.UnixNano() != want[i].Timestamp.UnixNano() ||
			decoded[i].Checksum != want[i].Checksum {
			t.Errorf("entry %d round trip mismatch: got %+v, want %+v", i, decoded[i], want[i])
		}
	}

	// a corrupted dump is rejected
	var tampered bytes.Buffer
	if err := l.Dump(&tampered); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}
	raw := tampered.Bytes()
	raw[len(raw)-1] ^= 0xFF
	if _, err := ReadEntries(bytes.NewReader(raw)); err == nil {
		t.Error("ReadEntries() should reject a corrupted dump")
	}
}

func TestLogAppendAfterClose(t *testing.T) {
	l := New(nil)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if _, err := l.Append(OpSet, "key", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() after close = %v, want ErrClosed", err)
	}

	// Close is idempotent
	if err := l.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := New(nil)
	defer l.Close()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("key-%d-%d", worker, i)
				if _, err := l.Append(OpSet, key, []byte("value")); err != nil {
					t.Errorf("Append() failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	stats := l.Stats()
	if stats.Appended != workers*perWorker {
		t.Errorf("Stats().Appended = %d, want %d", stats.Appended, workers*perWorker)
	}
	if stats.LastID != workers*perWorker {
		t.Errorf("Stats().LastID = %d, want %d", stats.LastID, workers*perWorker)
	}

	// ids are dense: entry i carries id i+1
	for i, e := range l.Entries() {
		if e.ID != uint64(i+1) {
			t.Fatalf("entry %d has id %d, want dense ids", i, e.ID)
		}
	}
}
