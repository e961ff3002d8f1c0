package pipeline

import "sync"

// WorkQueue is a FIFO of pending input items shared by all workers of a run.
// Every item is claimed by exactly one worker; once dequeued an item is never
// returned to the queue.
type WorkQueue[T any] struct {
	mu      sync.Mutex
	items   []T
	initial int
}

// NewWorkQueue builds a queue from the fully materialized input set. The
// initial length is recorded for progress computation and never changes.
func NewWorkQueue[T any](items []T) *WorkQueue[T] {
	q := &WorkQueue[T]{
		items:   make([]T, len(items)),
		initial: len(items),
	}
	copy(q.items, items)
	return q
}

// TryDequeue removes and returns the head item. The second return value is
// false when the queue is empty.
func (q *WorkQueue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Clear drops all remaining items and returns how many were dropped. Used by
// the dispatcher on abort; dropped items are never processed.
func (q *WorkQueue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.items)
	q.items = nil
	return dropped
}

// Count returns the number of items still queued. The value may be stale by
// the time the caller reads it given concurrent dequeues.
func (q *WorkQueue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InitialLen returns the queue length recorded at creation.
func (q *WorkQueue[T]) InitialLen() int {
	return q.initial
}
