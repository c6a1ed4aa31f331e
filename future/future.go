// Package future implements results of asynchronous computations, such as sensor readings
// requested with ReadAsync.
//
// A Future is completed exactly once by its producer, either resolved with a value or failed
// with an error. Consumers may poll it with IsDone, block on it with Get or Wait, or block for a
// bounded time with GetTimeout. A timed out wait does not consume the result and a failure is
// returned again on every later query. Futures cannot be cancelled once issued.
package future

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// ErrNotAvailable is returned by GetTimeout and Wait when the result is not available before the
// timeout or context expires.
var ErrNotAvailable = errors.New("result not yet available")

// Result is the consumer side of a pending value. Local futures and remote future clients both
// implement it.
type Result[T any] interface {
	// IsDone reports whether the result is resolved or failed without blocking.
	IsDone() bool
	// Get blocks until the result is resolved or failed.
	Get() (T, error)
	// GetTimeout blocks up to timeout and returns ErrNotAvailable if the result is still pending.
	GetTimeout(timeout time.Duration) (T, error)
	// Wait blocks until the result is complete or ctx is done. In the latter case the returned
	// error matches both ErrNotAvailable and the context error.
	Wait(ctx context.Context) (T, error)
}

// Future is a locally produced Result.
type Future[T any] struct {
	clock clock.Clock
	done  chan struct{}

	mu        sync.Mutex
	completed bool
	value     T
	err       error
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return NewWithClock[T](clock.New())
}

// NewWithClock returns a pending future whose timeouts are measured with clk.
func NewWithClock[T any](clk clock.Clock) *Future[T] {
	return &Future[T]{clock: clk, done: make(chan struct{})}
}

// Resolved returns a future already resolved with value.
func Resolved[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

// Failed returns a future already failed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Go runs fn in a new goroutine and completes the returned future with its result. A panic in fn
// fails the future.
func Go[T any](fn func() (T, error)) *Future[T] {
	return GoWithClock(clock.New(), fn)
}

// GoWithClock is like Go but measures timeouts with clk.
func GoWithClock[T any](clk clock.Clock, fn func() (T, error)) *Future[T] {
	f := NewWithClock[T](clk)
	go func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				f.Fail(errors.Errorf("panic computing result: %v", r))
				return
			}
			if err != nil {
				f.Fail(err)
				return
			}
			f.Resolve(value)
		}()
		value, err = fn()
	}()
	return f
}

// Resolve completes the future with value. Completing a future twice is a programming error and
// panics.
func (f *Future[T]) Resolve(value T) {
	f.complete(value, nil)
}

// Fail completes the future with err, which must not be nil. Completing a future twice is a
// programming error and panics.
func (f *Future[T]) Fail(err error) {
	if err == nil {
		panic("future: Fail called with a nil error")
	}
	var zero T
	f.complete(zero, err)
}

func (f *Future[T]) complete(value T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		panic("future: result already completed")
	}
	f.completed = true
	f.value = value
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// Done returns a channel that is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future completes.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// GetTimeout blocks up to timeout for the future to complete.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) {
	if f.IsDone() {
		return f.Get()
	}
	timer := f.clock.Timer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.Get()
	case <-timer.C:
		var zero T
		return zero, ErrNotAvailable
	}
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if f.IsDone() {
		return f.Get()
	}
	select {
	case <-f.done:
		return f.Get()
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrNotAvailable, ctx.Err())
	}
}
