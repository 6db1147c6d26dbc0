// Package future provides a resolve-once asynchronous result.
//
// A Future is created pending and resolves exactly once, either with a value or
// with an error. Later resolutions are ignored. Await blocks until resolution.
//
//	f := future.Go(ctx, func(ctx context.Context) (*engine.Module, error) {
//	    return eng.Load(ctx, location)
//	})
//	mod, err := f.Await(ctx)
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result while the future has not resolved.
var ErrPending = errors.New("future: pending")

// Future is a single-resolution asynchronous result.
type Future[T any] struct {
	value T
	err   error
	done  chan struct{}
	once  sync.Once
}

// Resolver settles a Future. Only the first call of either method has effect;
// both report whether they settled it.
type Resolver[T any] struct {
	f *Future[T]
}

// New returns a pending Future and its Resolver.
func New[T any]() (*Future[T], Resolver[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, Resolver[T]{f: f}
}

// Go runs fn on a new goroutine and returns a Future for its result.
// A panic in fn is not recovered.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f, r := New[T]()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			r.Reject(err)
			return
		}
		r.Resolve(v)
	}()
	return f
}

// Resolve settles the future with a value.
func (r Resolver[T]) Resolve(v T) bool {
	return r.f.settle(v, nil)
}

// Reject settles the future with an error.
func (r Resolver[T]) Reject(err error) bool {
	var zero T
	return r.f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done. A done ctx does not
// cancel the underlying work; it only stops the wait.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the resolution without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}
