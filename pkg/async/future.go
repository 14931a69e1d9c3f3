// Package async provides a one-shot completion signal.
package async

import (
	"context"
	"sync"
)

// Future is a completion signal that settles exactly once, either with a value
// or with an error. Any number of goroutines may wait on it, and callbacks
// registered before or after settlement each run exactly once.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     T
	err       error
	nextID    uint64
	callbacks map[uint64]func(T, error)
	order     []uint64
}

func New[T any]() *Future[T] {
	return &Future[T]{
		done:      make(chan struct{}),
		callbacks: make(map[uint64]func(T, error)),
	}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. Returns false if it had already settled.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err. Returns false if it had already settled.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	pending := make([]func(T, error), 0, len(f.order))
	for _, id := range f.order {
		if cb, ok := f.callbacks[id]; ok {
			pending = append(pending, cb)
		}
	}
	f.callbacks = nil
	f.order = nil
	close(f.done)
	f.mu.Unlock()

	// Callbacks run in the settling goroutine, in registration order.
	for _, cb := range pending {
		cb(v, err)
	}
	return true
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result reports the settled value without blocking. ok is false while pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, err, _ := f.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run when the future settles. If it already has,
// fn runs immediately in the caller's goroutine. The returned cancel func
// unregisters a pending callback; it is a no-op afterwards.
func (f *Future[T]) OnComplete(fn func(T, error)) (cancel func()) {
	f.mu.Lock()
	if f.settled {
		v, err := f.value, f.err
		f.mu.Unlock()
		fn(v, err)
		return func() {}
	}
	id := f.nextID
	f.nextID++
	f.callbacks[id] = fn
	f.order = append(f.order, id)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.callbacks != nil {
			delete(f.callbacks, id)
		}
	}
}
