package queue

import (
	"context"
	"errors"
	"sync"

	"nemsql/backend/services/converter/internal/models"
)

// DefaultCapacity bounds memory when the reader outpaces the workers.
const DefaultCapacity = 1000

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded FIFO of blocks shared by one producer and many consumers.
// Closing it is the termination signal: consumers drain what is left and then stop.
type Queue struct {
	items  chan models.Block
	mu     sync.RWMutex
	closed bool
}

// New creates a queue holding at most capacity blocks. Non-positive capacities use
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make(chan models.Block, capacity)}
}

// Put enqueues b, blocking while the queue is full.
func (q *Queue) Put(ctx context.Context, b models.Block) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take dequeues the next block, blocking while the queue is empty. ok is false once the
// queue has been closed and drained.
func (q *Queue) Take(ctx context.Context) (b models.Block, ok bool, err error) {
	select {
	case b, ok = <-q.items:
		return b, ok, nil
	case <-ctx.Done():
		return models.Block{}, false, ctx.Err()
	}
}

// Close signals that no more blocks will be enqueued. It is safe to call more than once.
// Close waits for in-flight Put calls to return.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Len returns the number of queued blocks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.items)
}
