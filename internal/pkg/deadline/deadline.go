// Package deadline races host calls against a timeout.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

type result[T any] struct {
	val T
	err error
}

// Run calls fn with a context bounded by d and returns its result, or a
// timeout error as soon as the bound elapses. fn keeps running in the
// background after a timeout until it observes its context being cancelled;
// its late result is discarded.
func Run[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, domain.ErrTimeout(fmt.Sprintf("%s timed out after %s", op, d)).WithCause(ctx.Err())
		}
		return zero, ctx.Err()
	}
}

// IsTimeout reports whether err came from an elapsed bound.
func IsTimeout(err error) bool {
	var e *domain.Error
	return errors.As(err, &e) && e.Type == domain.ErrorTypeTimeout
}
