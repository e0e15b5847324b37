package wal

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// queueNode is a single element in the sink queue
type queueNode struct {
	entry *Entry
	next  atomic.Pointer[queueNode]
}

// entryQueue is a lock-free multi-producer single-consumer queue carrying
// log entries to the sink consumer. Producers append with atomic
// compare-and-swap operations, a single consumer goroutine drains the
// linked list into the output channel.
//
// The queue itself makes no ordering promise between concurrent pushes;
// the log pushes under its writer mutex, which keeps entry ids strictly
// increasing on the consumer side.
type entryQueue struct {
	head     atomic.Pointer[queueNode]
	tail     atomic.Pointer[queueNode]
	out      chan *Entry
	consumer sync.WaitGroup
	closed   atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// newEntryQueue creates the queue and starts its consumer goroutine
func newEntryQueue() *entryQueue {
	// sentinel node so head and tail are never nil
	sentinel := &queueNode{}

	q := &entryQueue{
		out: make(chan *Entry),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// push appends an entry to the queue.
// Returns true if the entry was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *entryQueue) push(entry *Entry) bool {
	if entry == nil || q.closed.Load() {
		return false
	}

	newNode := &queueNode{entry: entry}

	var backoff uint8
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// the CAS below may lose to a helping producer, the tail
				// still ends up at the new node either way
				q.tail.CompareAndSwap(tailNode, newNode)
				q.cond.Signal()
				return true
			}
		} else {
			// another producer appended but has not advanced the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention: spin first, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume drains the linked list into the output channel and frees nodes
func (q *entryQueue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		drained := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			drained = true

			entry := next.entry
			q.head.Store(next)
			q.out <- entry
			next.entry = nil
		}

		if !drained && q.closed.Load() {
			return
		}

		if !drained {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// recv returns the receive side of the queue. The channel is closed after
// close has been called and all remaining entries were delivered.
func (q *entryQueue) recv() <-chan *Entry {
	return q.out
}

// close stops the queue for writers. Entries already queued are still
// delivered to the consumer before the output channel closes.
func (q *entryQueue) close() {
	q.closed.Store(true)
	q.cond.Signal()
}
