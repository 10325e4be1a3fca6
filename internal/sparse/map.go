package sparse

import "golang.org/x/exp/constraints"

// Entry is a key/value pair stored in a Map.
type Entry[K constraints.Unsigned, V any] struct {
	Key K
	Val V
}

// Map is a map from keys in [0, universe) to values of type V.
type Map[K constraints.Unsigned, V any] struct {
	dense  []Entry[K, V]
	sparse []int32
}

// NewMap returns an empty map able to hold keys in [0, universe).
func NewMap[K constraints.Unsigned, V any](universe int) *Map[K, V] {
	return &Map[K, V]{
		sparse: make([]int32, universe),
	}
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.dense)
}

func (m *Map[K, V]) slot(k K) (int32, bool) {
	if uint64(k) >= uint64(len(m.sparse)) {
		return 0, false
	}
	i := m.sparse[k]
	return i, int(i) < len(m.dense) && m.dense[i].Key == k
}

// Contains reports whether k has an entry.
func (m *Map[K, V]) Contains(k K) bool {
	_, ok := m.slot(k)
	return ok
}

// Get returns the value stored for k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	if i, ok := m.slot(k); ok {
		return m.dense[i].Val, true
	}
	var zero V
	return zero, false
}

// Set stores v for k, replacing any previous value.
func (m *Map[K, V]) Set(k K, v V) {
	if i, ok := m.slot(k); ok {
		m.dense[i].Val = v
		return
	}
	m.sparse[k] = int32(len(m.dense)) //nolint:gosec // G115: bounded by universe
	m.dense = append(m.dense, Entry[K, V]{Key: k, Val: v})
}

// Remove deletes the entry for k if present.
func (m *Map[K, V]) Remove(k K) {
	i, ok := m.slot(k)
	if !ok {
		return
	}
	last := m.dense[len(m.dense)-1]
	m.dense[i] = last
	m.sparse[last.Key] = i
	m.dense = m.dense[:len(m.dense)-1]
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	m.dense = m.dense[:0]
}

// Contents returns the entries; the slice aliases internal storage.
func (m *Map[K, V]) Contents() []Entry[K, V] {
	return m.dense
}
