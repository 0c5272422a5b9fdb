package bus

import (
	"context"
	"sync"

	"tradecore/pkg/exception"
)

// Queue is a bounded, non-blocking queue of T.
type Queue[T any] struct {
	ch chan T

	// mu orders sends against Close so a send never hits a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an item without blocking.
func (q *Queue[T]) TryPublish(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return exception.ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// C exposes the receive side for callers selecting on other signals.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Close stops the queue from accepting new items.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run consumes items until the context is done or the queue is closed.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			handler(item)
		}
	}
}

// Drain returns every buffered item without blocking.
func (q *Queue[T]) Drain() []T {
	var items []T
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return items
			}
			items = append(items, item)
		default:
			return items
		}
	}
}
