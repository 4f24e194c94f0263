package qa

import (
	"context"
	"time"
)

// outcome carries the result of an external call back to the waiting request.
type outcome[T any] struct {
	val T
	err error
}

// callWithTimeout runs fn in its own goroutine and waits for it for at most
// timeout. The context passed to fn is cancelled when the wait ends, so a
// cooperative backend stops early; a late result is discarded. A zero timeout
// waits only on ctx. The returned error wraps context.DeadlineExceeded when
// the bound elapsed.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered so the goroutine never blocks on send after the caller has left.
	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn(callCtx)
		ch <- outcome[T]{val: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-callCtx.Done():
		var zero T
		return zero, callCtx.Err()
	}
}
