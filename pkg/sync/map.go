package sync

import "sync"

// TypedSyncMap is a thin generic wrapper around sync.Map, removing
// the type assertions from call sites.
type TypedSyncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *TypedSyncMap[K, V]) Delete(key K) { m.m.Delete(key) }

func (m *TypedSyncMap[K, V]) Store(key K, value V) { m.m.Store(key, value) }

func (m *TypedSyncMap[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return *new(V), false
	}

	return cast[V](v)
}

func (m *TypedSyncMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	v, loaded := m.m.LoadOrStore(key, value)
	out, _ := cast[V](v)
	return out, loaded
}

func (m *TypedSyncMap[K, V]) LoadAndDelete(key K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(key)
	if !loaded {
		return *new(V), false
	}

	out, _ := cast[V](v)
	return out, true
}

// Range calls f for each entry in the map. Iteration stops
// if f returns false.
func (m *TypedSyncMap[K, V]) Range(f func(K, V) bool) {
	m.m.Range(func(key, value any) bool {
		k, ok := key.(K)
		if !ok {
			return true
		}
		v, ok := cast[V](value)
		if !ok {
			return true
		}

		return f(k, v)
	})
}

// Values returns a snapshot of all values currently stored.
func (m *TypedSyncMap[K, V]) Values() []V {
	out := make([]V, 0)
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})

	return out
}

func cast[V any](v any) (V, bool) {
	if vv, ok := v.(V); ok {
		return vv, true
	}

	return *new(V), false
}
