package wal

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultRetention is how long entries stay in the ring before pruning
	DefaultRetention = 5 * time.Minute

	// DefaultMaxEntries caps the number of retained entries
	DefaultMaxEntries = 10000
)

// ErrClosed is returned by Append after the log has been closed
var ErrClosed = errors.New("wal: log closed")

// --------------------------------------------------------------------------
// Sink
// --------------------------------------------------------------------------

// Sink consumes log entries durably. Consume is called from a single
// goroutine in entry-id order, once per entry; a nil return advances the
// consumed watermark past the entry, an error is counted and leaves the
// watermark where it was. Entries above the watermark are held from
// pruning.
type Sink interface {
	Consume(e Entry) error
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Log
type Options struct {
	// Retention is the time window entries are kept for (default 5 minutes)
	Retention time.Duration

	// MaxEntries caps the ring size (default 10000). The cap yields to an
	// unconsumed sink backlog, so a lagging sink can grow the ring past it.
	MaxEntries int

	// Sink optionally receives every appended entry for durable
	// consumption. Without a sink, pruning is governed by retention and
	// the entry cap alone.
	Sink Sink
}

// DefaultOptions returns the default log configuration
func DefaultOptions() *Options {
	return &Options{
		Retention:  DefaultRetention,
		MaxEntries: DefaultMaxEntries,
	}
}

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

// Log is an in-memory, bounded write-ahead log of mutation intents.
// Every mutating engine operation appends its entry before the mutation is
// applied to the primary store. The ring is pruned by age and size; it is
// an observability and integration surface, not a recovery mechanism.
type Log struct {
	mu      sync.Mutex // single writer keeps ids dense and the ring ordered
	entries []Entry
	nextID  uint64
	closed  bool

	retention  time.Duration
	maxEntries int

	sink      Sink
	queue     *entryQueue
	watermark atomic.Uint64 // highest entry id the sink has consumed
	sinkDone  sync.WaitGroup

	appended   atomic.Uint64
	pruned     atomic.Uint64
	sinkErrors atomic.Uint64

	now func() time.Time
}

// New creates a log with the given options, nil selects the defaults.
// If a sink is configured its consumer goroutine starts immediately.
func New(opts *Options) *Log {
	if opts == nil {
		opts = DefaultOptions()
	}

	l := &Log{
		retention:  opts.Retention,
		maxEntries: opts.MaxEntries,
		sink:       opts.Sink,
		now:        time.Now,
	}
	if l.retention <= 0 {
		l.retention = DefaultRetention
	}
	if l.maxEntries <= 0 {
		l.maxEntries = DefaultMaxEntries
	}

	if l.sink != nil {
		l.queue = newEntryQueue()
		l.sinkDone.Add(1)
		go l.consumeSink()
	}

	return l
}

// Append records a mutation intent and returns its entry id. Ids start at
// 1 and increase by one per appended entry. The value bytes are copied, so
// the caller keeps ownership of its buffer.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Append(op Operation, key string, value []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}

	l.nextID++
	e := Entry{
		ID:        l.nextID,
		Op:        op,
		Key:       key,
		Timestamp: l.now(),
	}
	if value != nil {
		e.Value = make([]byte, len(value))
		copy(e.Value, value)
	}
	e.Checksum = e.computeChecksum()

	l.entries = append(l.entries, e)
	l.appended.Add(1)

	if l.queue != nil {
		// the sink gets its own copy so it can never touch the ring's buffers
		clone := e.Clone()
		l.queue.push(&clone)
	}

	// opportunistic pruning keeps the ring bounded without a timer
	l.pruneLocked(e.Timestamp)

	return e.ID, nil
}

// Prune drops entries older than the retention window and enforces the
// entry cap, and returns the number of dropped entries. Entries a
// configured sink has not consumed yet are always held back.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now)
}

func (l *Log) pruneLocked(now time.Time) int {
	cutoff := now.Add(-l.retention)
	total := len(l.entries)

	drop := 0
	for i := range l.entries {
		e := &l.entries[i]
		expired := e.Timestamp.Before(cutoff)
		overCap := total-i > l.maxEntries
		if !expired && !overCap {
			break
		}
		if l.sink != nil && e.ID > l.watermark.Load() {
			break
		}
		drop = i + 1
	}
	if drop == 0 {
		return 0
	}

	n := copy(l.entries, l.entries[drop:])
	for i := n; i < len(l.entries); i++ {
		l.entries[i] = Entry{} // release value buffers
	}
	l.entries = l.entries[:n]

	l.pruned.Add(uint64(drop))
	return drop
}

// consumeSink feeds queued entries to the sink and advances the watermark
func (l *Log) consumeSink() {
	defer l.sinkDone.Done()

	for e := range l.queue.recv() {
		if err := l.sink.Consume(*e); err != nil {
			l.sinkErrors.Add(1)
			continue
		}
		l.watermark.Store(e.ID)
	}
}

// Entries returns a deep copy of the retained entries in id order.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i := range l.entries {
		out[i] = l.entries[i].Clone()
	}
	return out
}

// Len returns the number of retained entries.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LastID returns the id of the most recently appended entry, 0 if none.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) LastID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// Watermark returns the highest entry id the sink has consumed, 0 when no
// sink is configured or nothing has been consumed yet.
func (l *Log) Watermark() uint64 {
	return l.watermark.Load()
}

// Close stops the log. A configured sink receives all entries that were
// already appended before Close returns.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.queue != nil {
		l.queue.close()
		l.sinkDone.Wait()
	}
	return nil
}

// --------------------------------------------------------------------------
// Dump / Restore
// --------------------------------------------------------------------------

// Dump writes the retained entries to the writer as a length-prefixed
// sequence of serialized entries, so the log content is reproducible
// outside the process.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Dump(w io.Writer) error {
	for _, e := range l.Entries() {
		data := e.Serialize()
		if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
			return errors.Wrap(err, "failed to write entry length")
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, "failed to write entry")
		}
	}
	return nil
}

// ReadEntries decodes a length-prefixed entry sequence produced by Dump.
// Every entry's checksum is verified during decoding.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, errors.Wrap(err, "failed to read entry length")
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, errors.Wrap(err, "failed to read entry")
		}

		var e Entry
		if err := e.Deserialize(data); err != nil {
			return nil, errors.Wrap(err, "failed to decode entry")
		}
		entries = append(entries, e)
	}
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point-in-time snapshot of the log counters
type Stats struct {
	Appended   uint64 `json:"appended"`
	Pruned     uint64 `json:"pruned"`
	Entries    int    `json:"entries"`
	LastID     uint64 `json:"last_id"`
	Watermark  uint64 `json:"watermark"`
	SinkErrors uint64 `json:"sink_errors"`
}

// Stats returns a snapshot of the log counters.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	entries := len(l.entries)
	lastID := l.nextID
	l.mu.Unlock()

	return Stats{
		Appended:   l.appended.Load(),
		Pruned:     l.pruned.Load(),
		Entries:    entries,
		LastID:     lastID,
		Watermark:  l.watermark.Load(),
		SinkErrors: l.sinkErrors.Load(),
	}
}
