// Package queue serializes evaluation work into one in-flight call.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/syncx"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

// Queue runs submitted work one item at a time in FIFO order.
//
// Clear invalidates every item that has not started yet without waiting for
// the running one: it bumps the generation and installs a fresh lock, so
// waiters on the old lock find a stale generation when their turn comes and
// return domain.ErrDroppedByClear.
type Queue[T any] struct {
	mu         sync.Mutex
	lock       *syncx.Lock
	generation uint64
	pending    atomic.Int64
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{lock: syncx.NewLock()}
}

// Enqueue waits for its turn and runs work. It returns
// domain.ErrDroppedByClear when Clear ran before the turn came, and the
// context error when ctx ends first.
func (q *Queue[T]) Enqueue(ctx context.Context, work func(context.Context) (T, error)) (T, error) {
	var zero T

	q.mu.Lock()
	gen := q.generation
	lock := q.lock
	q.mu.Unlock()

	q.pending.Add(1)
	defer q.pending.Add(-1)

	release, err := lock.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	if q.Generation() != gen {
		telemetry.QueueDrops.Inc()
		return zero, domain.ErrDroppedByClear
	}

	return work(ctx)
}

// Clear drops all work that has not started. It does not block.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generation++
	q.lock = syncx.NewLock()
}

// Generation returns the current generation.
func (q *Queue[T]) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

// Pending returns the number of items waiting or running.
func (q *Queue[T]) Pending() int {
	return int(q.pending.Load())
}
