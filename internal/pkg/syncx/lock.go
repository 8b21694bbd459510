// Package syncx provides a context-aware mutex whose waiters are served in
// arrival order.
package syncx

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock is a mutex that can be acquired with a context. Waiters are granted
// the lock in FIFO order. The zero value is not usable; call NewLock.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or ctx is done. On success the
// returned function releases the lock; calls after the first do nothing.
func (l *Lock) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { l.sem.Release(1) }) }, nil
}
