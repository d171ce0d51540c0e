package registry

import (
	"sync"
)

// Registry is a keyed store that remembers insertion order, so iteration
// over a parsed dump is deterministic.
type Registry[K comparable, V any] struct {
	data  map[K]V
	order []K
	mu    sync.RWMutex
}

func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		data: make(map[K]V),
	}
}

// Add stores value under key. Re-adding a key replaces the value but keeps its position.
func (r *Registry[K, V]) Add(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[key]; !exists {
		r.order = append(r.order, key)
	}
	r.data[key] = value
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, exists := r.data[key]
	return value, exists
}

func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Registry[K, V]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Each calls fn in insertion order until it returns false
func (r *Registry[K, V]) Each(fn func(K, V) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.order {
		if !fn(k, r.data[k]) {
			return
		}
	}
}

// Keys returns a copy of the keys in insertion order
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]K(nil), r.order...)
}

func (r *Registry[K, V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[K]V)
	r.order = nil
}
