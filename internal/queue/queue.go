// Package queue provides the bounded, drop-on-full FIFO used between the
// engine's background workers.
package queue

import (
	"sync"
)

// Bounded is a thread-safe fixed-capacity ring buffer. Producers never block:
// when the buffer is full TrySend drops the new item and counts it.
type Bounded[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	highWater     int
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// TrySend appends an item without blocking.
// Returns false if the queue is full or closed; full drops are counted.
func (q *Bounded[T]) TrySend(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == q.capacity {
		q.dropped++
		return false
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalReceived++
	if q.count > q.highWater {
		q.highWater = q.count
	}
	return true
}

// TryReceive removes the oldest item without blocking.
// Returns the item and true if available, or zero value and false otherwise.
func (q *Bounded[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}
	return q.popLocked(), true
}

// popLocked must be called with the lock held and count > 0.
func (q *Bounded[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalSent++
	return item
}

// Close stops accepting new items. Remaining items can still be received.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Stats returns queue statistics.
func (q *Bounded[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		Dropped:       q.dropped,
		HighWater:     q.highWater,
	}
}

// Stats contains queue statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	HighWater     int
}
