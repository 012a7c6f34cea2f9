// Package config provides a generic, hot-reloadable configuration system.
// Values come from a TOML file in the workspace, optionally overlaid with
// settings pushed by the editor, and are watched with fsnotify.
package config

import (
	"sync"
	"sync/atomic"
)

// Store holds the current configuration value with atomic read/swap semantics.
// T must be a struct type.
type Store[T any] struct {
	value atomic.Pointer[T]

	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(old, new_ *T)
}

// NewStore creates a config store with the given initial value.
func NewStore[T any](initial *T) *Store[T] {
	s := &Store[T]{listeners: make(map[int]func(old, new_ *T))}
	s.value.Store(initial)
	return s
}

// Get returns the current config value (zero-lock read). Callers must treat
// the result as read-only.
func (s *Store[T]) Get() *T {
	return s.value.Load()
}

// Swap atomically replaces the config and notifies all listeners.
func (s *Store[T]) Swap(new_ *T) *T {
	old := s.value.Swap(new_)

	s.mu.RLock()
	listeners := make([]func(old, new_ *T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(old, new_)
	}
	return old
}

// OnChange registers a listener called whenever the config changes. The
// returned function unregisters it.
func (s *Store[T]) OnChange(fn func(old, new_ *T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
