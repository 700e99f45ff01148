// Package lifecycle composes start and done callbacks around a unit of work.
package lifecycle

import "context"

// Hooks holds ordered start and done callbacks for work producing an R.
// Hooks adds no locking: wrapped functions may run concurrently as long as
// the callbacks themselves are safe to call concurrently.
type Hooks[R any] struct {
	start []func()
	done  []func(R)
}

// New returns an empty hook set.
func New[R any]() *Hooks[R] {
	return &Hooks[R]{}
}

// AddStart registers fn to run before the work.
func (h *Hooks[R]) AddStart(fn func()) *Hooks[R] {
	h.start = append(h.start, fn)
	return h
}

// AddDone registers fn to run after the work with its result.
func (h *Hooks[R]) AddDone(fn func(R)) *Hooks[R] {
	h.done = append(h.done, fn)
	return h
}

// Wrap returns a function equivalent to fn that runs the start callbacks,
// then fn, then the done callbacks, each group in registration order.
// The result of fn is returned unchanged.
func (h *Hooks[R]) Wrap(fn func(context.Context) R) func(context.Context) R {
	start := append([]func(){}, h.start...)
	done := append([]func(R){}, h.done...)

	return func(ctx context.Context) R {
		for _, f := range start {
			f()
		}
		result := fn(ctx)
		for _, f := range done {
			f(result)
		}
		return result
	}
}
