package vision

import (
	"context"
	"sync"
)

// Lazy initializes a value on first use. Concurrent first callers wait for a single
// initialization. A failed initialization is not remembered; the next call retries.
type Lazy[T any] struct {
	mu    sync.Mutex
	init  func(context.Context) (T, error)
	value T
	ready bool
}

// NewLazy wraps init.
func NewLazy[T any](init func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Ready returns a Lazy that is already initialized with v.
func Ready[T any](v T) *Lazy[T] {
	return &Lazy[T]{value: v, ready: true}
}

// Get returns the value, initializing it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.value, nil
	}
	v, err := l.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = v
	l.ready = true
	return v, nil
}

// Peek returns the value without initializing it.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}
