package system

import (
	"context"
	"fmt"
	"time"
)

type result[T any] struct {
	val T
	err error
}

// WithTimeout runs read with an upper bound. If the bound elapses first the
// caller gets ErrReadTimeout and the read is left to finish in the background.
func WithTimeout[T any](ctx context.Context, d time.Duration, read func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return read(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := read(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w after %v", ErrReadTimeout, d)
	}
}
