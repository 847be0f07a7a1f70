package guard

import (
	"sync"

	"github.com/psantana5/callguard/pkg/logging"
)

// SafeValue is a piece of owner state that ignores updates once the owning
// scope has been torn down. Skipped updates are logged at WARN.
type SafeValue[T any] struct {
	scope *Scope
	name  string

	mu          sync.RWMutex
	value       T
	subscribers []func(T)
}

// NewSafeValue creates a value owned by scope.
func NewSafeValue[T any](scope *Scope, name string, initial T) *SafeValue[T] {
	return &SafeValue[T]{scope: scope, name: name, value: initial}
}

// Get returns the current value.
func (v *SafeValue[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the value if the scope is alive.
func (v *SafeValue[T]) Set(next T) {
	v.Update(func(T) T { return next })
}

// Update applies fn to the previous value if the scope is alive. An update
// that is applied finishes before Close returns; fn must not close the scope.
func (v *SafeValue[T]) Update(fn func(prev T) T) {
	var (
		next T
		subs []func(T)
	)
	applied := v.scope.whileAlive(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.value = fn(v.value)
		next = v.value
		subs = make([]func(T), len(v.subscribers))
		copy(subs, v.subscribers)
	})
	if !applied {
		v.scope.Logger().Warn("state update skipped after teardown", logging.Fields{"state": v.name})
		return
	}

	for _, sub := range subs {
		sub(next)
	}
}

// OnChange registers fn to be called with every applied update.
func (v *SafeValue[T]) OnChange(fn func(T)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subscribers = append(v.subscribers, fn)
}
