package bridge

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO with one producer and one consumer.
//
// Producers never block. The consumer either drains everything currently queued
// without waiting (Drain) or blocks for the next item (Pop). After Close, Push is
// refused but items already queued are still handed out, so a consumer can flush
// them before exiting.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// notify holds at most one pending wake-up for a blocked Pop.
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push appends v. It returns false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

// Drain removes and returns everything currently queued without waiting.
// It returns nil when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Pop blocks until an item is available, the queue is closed and empty, or ctx
// is done. The boolean is false in the latter two cases.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			var zero T
			return zero, false
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close refuses further pushes and wakes a blocked Pop. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
