package async

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by AwaitWithTimeout when the future does not
	// complete within the given duration.
	ErrTimeout = errors.New("async: await timed out")

	// ErrNoFutures is returned by WaitAny when called with no futures.
	ErrNoFutures = errors.New("async: no futures provided")
)

// Future represents the result of an asynchronous computation producing a
// value of type U. A Future completes exactly once; all Await variants observe
// the same result.
type Future[U any] struct {
	value U
	err   error
	once  sync.Once
	done  chan struct{}
}

// NewFuture creates an unresolved future that can be completed manually with
// Complete. Most callers should use Go instead.
func NewFuture[U any]() *Future[U] {
	return &Future[U]{done: make(chan struct{})}
}

// Complete resolves the future with the given value and error. Only the first
// call has any effect; later calls are no-ops.
func (f *Future[U]) Complete(value U, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed when the future completes. It is
// intended for use in select statements alongside other channels.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the computation completes and returns its result.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.value, f.err
}

// AwaitContext waits for the computation to complete or the context to end,
// whichever happens first. On context cancellation the underlying computation
// keeps running and its result remains available to later Awaits.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout waits for the computation to complete with a timeout.
// Returns ErrTimeout if the duration elapses first; the underlying
// computation keeps running and its result remains available to later Awaits.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-time.After(timeout):
		var zero U
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the computation has finished, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Go runs fn in a new goroutine and returns a future for its result.
func Go[U any](fn func() (U, error)) *Future[U] {
	f := NewFuture[U]()

	go func() {
		value, err := fn()
		f.Complete(value, err)
	}()

	return f
}

// WaitAll waits for every future to complete and returns their values in
// order. If any future failed, the first error encountered is returned along
// with the partial results.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	values := make([]U, len(futures))
	var firstErr error

	for i, future := range futures {
		value, err := future.Await()
		values[i] = value
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return values, firstErr
}

// WaitAny waits for the first future to complete and returns its index, value,
// and error. The remaining futures keep running.
func WaitAny[U any](futures ...*Future[U]) (int, U, error) {
	var zero U
	if len(futures) == 0 {
		return -1, zero, ErrNoFutures
	}

	type completion struct {
		index int
		value U
		err   error
	}

	done := make(chan completion, 1)

	for i, future := range futures {
		go func(index int, f *Future[U]) {
			value, err := f.Await()
			select {
			case done <- completion{index, value, err}:
			default:
				// Another future already won; drop this result.
			}
		}(i, future)
	}

	res := <-done
	return res.index, res.value, res.err
}
