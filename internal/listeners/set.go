// Package listeners keeps ordered, de-duplicated listener lists.
package listeners

import (
	"reflect"
	"sync"
)

// Set is a goroutine safe list of listeners. Adding a listener twice is a no-op.
// Listeners of non-comparable types, such as func adapters, are never equal to
// one another: they are always added and only dropped by Clear.
type Set[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Add appends l unless it is already present. It reports whether l was added.
func (s *Set[T]) Add(l T) bool {
	if isNil(l) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if same(existing, l) {
			return false
		}
	}
	s.items = append(s.items, l)
	return true
}

// Remove drops l. It reports whether l was present.
func (s *Set[T]) Remove(l T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if same(existing, l) {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Set[T]) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a copy safe to iterate without holding the lock.
func (s *Set[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.items...)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func same(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
