// Package syncmap provides a generic map guarded by a mutex.
package syncmap

import (
	"iter"
	"sync"
)

// Map is a regular map but synchronized with a mutex.
// The zero value is not ready for use; create one with [New].
type Map[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// New returns a new syncmap.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value for a key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	return v, ok
}

// Store sets the value for a key.
func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

// LoadOrStore returns the existing value for key if present.
// Otherwise, it stores value and returns it.
// The loaded result is true if the value was already present.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.m[key]; ok {
		return v, true
	}
	m.m[key] = value
	return value, false
}

// LoadAndDelete removes a key and returns its previous value, if any.
func (m *Map[K, V]) LoadAndDelete(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	delete(m.m, key)
	return v, ok
}

// Update replaces the value for key with the result of f, which receives the
// current value and whether it was present. If f reports false, the key is
// deleted instead. f runs with the map locked and must not use the map.
func (m *Map[K, V]) Update(key K, f func(old V, ok bool) (V, bool)) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.m[key]
	v, keep := f(old, ok)
	if keep {
		m.m[key] = v
	} else {
		delete(m.m, key)
	}
	return v
}

// Delete deletes a key.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// DeleteFunc deletes every entry for which del returns true and reports how
// many were removed.
func (m *Map[K, V]) DeleteFunc(del func(K, V) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range m.m {
		if del(k, v) {
			delete(m.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of elements in the map.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

// All iterates over all elements in the map.
// The map is unlocked while the loop body runs.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(f func(K, V) bool) {
		m.mu.Lock()
		for k, v := range m.m {
			m.mu.Unlock()
			if !f(k, v) {
				m.mu.Lock()
				break
			}

			m.mu.Lock()
		}

		m.mu.Unlock()
	}
}
