package queue

import (
	"context"
)

// MemQueue is an in-process Queue backed by a buffered channel, used for
// local runs and tests.
type MemQueue struct {
	items chan *WorkItem
}

// NewMemQueue creates a queue with the given buffer capacity.
func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{items: make(chan *WorkItem, capacity)}
}

// Enqueue implements Queue. A full buffer blocks until a worker drains an
// item or ctx is done.
func (q *MemQueue) Enqueue(ctx context.Context, item *WorkItem) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return &QueueUnavailableError{Err: ctx.Err()}
	}
}

// Dequeue implements Queue.
func (q *MemQueue) Dequeue(ctx context.Context) (*WorkItem, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
