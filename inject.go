// Package inject contains the runtime support types referenced by generated code.
package inject

import "sync"

// Lazy defers construction of a value until the first call to Get, then
// memoizes it. Generated code wraps a binding in a Lazy when the request
// site asks for Lazy[T] rather than T.
type Lazy[T any] struct {
	once  sync.Once
	build func() T
	value T
}

// NewLazy creates a Lazy that will call build at most once.
func NewLazy[T any](build func() T) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Get returns the value, constructing it on first use.
func (l *Lazy[T]) Get() T {
	l.once.Do(func() {
		l.value = l.build()
		l.build = nil
	})
	return l.value
}

// Pair is the return shape of a single map-multibinding contributor: one
// key/value entry of the aggregated map.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Entry constructs a typed map entry.
func Entry[K comparable, V any](key K, value V) Pair[K, V] {
	return Pair[K, V]{Key: key, Value: value}
}

// Store is the per-component backing store for scoped bindings. A component
// that owns a scope embeds one Store; each scoped binding constructed against
// that component is built at most once per component instance.
type Store struct {
	mu     sync.Mutex
	values map[string]any
}

// Get returns the value stored under key, calling build and memoizing its
// result if the key has not been constructed yet. A build error is returned
// without memoizing, so a later Get retries construction.
//
// The lock is not held while build runs: a scoped binding may depend on
// another scoped binding, in which case the generated build callback calls
// Get on the same store again. If two goroutines race on an unconstructed
// key both may build, and the first to finish wins.
func (s *Store) Get(key string, build func() (any, error)) (any, error) {
	s.mu.Lock()
	if v, ok := s.values[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()
	v, err := build()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.values[key]; ok {
		return prev, nil
	}
	if s.values == nil {
		s.values = map[string]any{}
	}
	s.values[key] = v
	return v, nil
}
