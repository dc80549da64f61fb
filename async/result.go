// Package async provides a single-assignment deferred value used to compose
// multi-step capture operations without nesting callbacks.
package async

import (
	"context"
	"sync"
)

// Executor runs work on some execution context.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

type immediate struct{}

func (immediate) Execute(fn func()) { fn() }

type goroutine struct{}

func (goroutine) Execute(fn func()) { go fn() }

var (
	// Immediate runs work on the goroutine that settles or observes the result.
	Immediate Executor = immediate{}
	// Go runs every piece of work on a fresh goroutine.
	Go Executor = goroutine{}
)

type observer[T any] struct {
	exec Executor
	fn   func(T, error)
}

// Result holds a value or an error that becomes available later. It settles
// exactly once.
type Result[T any] struct {
	mu        sync.Mutex
	settled   bool
	value     T
	err       error
	observers []observer[T]
	done      chan struct{}
}

// New returns an unsettled result.
func New[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Resolved returns a result already settled with v.
func Resolved[T any](v T) *Result[T] {
	r := New[T]()
	r.Resolve(v)
	return r
}

// Rejected returns a result already settled with err.
func Rejected[T any](err error) *Result[T] {
	r := New[T]()
	r.Reject(err)
	return r
}

// Resolve settles the result with v. It reports false if the result was
// already settled.
func (r *Result[T]) Resolve(v T) bool {
	return r.settle(v, nil)
}

// Reject settles the result with err. It reports false if the result was
// already settled. err must not be nil.
func (r *Result[T]) Reject(err error) bool {
	if err == nil {
		panic("async: Reject called with nil error")
	}
	var zero T
	return r.settle(zero, err)
}

func (r *Result[T]) settle(v T, err error) bool {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return false
	}
	r.settled = true
	r.value = v
	r.err = err
	observers := r.observers
	r.observers = nil
	close(r.done)
	r.mu.Unlock()

	for _, o := range observers {
		o.deliver(v, err)
	}
	return true
}

func (o observer[T]) deliver(v T, err error) {
	fn := o.fn
	o.exec.Execute(func() { fn(v, err) })
}

// Observe registers fn to run on exec once the result settles. If it is
// already settled fn is dispatched right away.
func (r *Result[T]) Observe(exec Executor, fn func(T, error)) {
	if exec == nil {
		exec = Immediate
	}
	o := observer[T]{exec: exec, fn: fn}

	r.mu.Lock()
	if !r.settled {
		r.observers = append(r.observers, o)
		r.mu.Unlock()
		return
	}
	v, err := r.value, r.err
	r.mu.Unlock()

	o.deliver(v, err)
}

// Done is closed once the result settles.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Settled reports whether the result has a value or an error.
func (r *Result[T]) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

// Value returns the settled value and error. Both are zero while pending.
func (r *Result[T]) Value() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// Await blocks until the result settles or ctx is done.
func (r *Result[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.Value()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then runs next with r's value once r resolves and settles the returned
// result with next's outcome. A rejection of r skips next and propagates.
func Then[T, U any](r *Result[T], next func(T) *Result[U]) *Result[U] {
	out := New[U]()
	r.Observe(Immediate, func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		n := next(v)
		if n == nil {
			panic("async: Then step returned nil result")
		}
		n.Observe(Immediate, func(u U, err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(u)
		})
	})
	return out
}

// Map is Then for synchronous steps.
func Map[T, U any](r *Result[T], fn func(T) (U, error)) *Result[U] {
	return Then(r, func(v T) *Result[U] {
		u, err := fn(v)
		if err != nil {
			return Rejected[U](err)
		}
		return Resolved(u)
	})
}
