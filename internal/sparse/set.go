// Package sparse provides dense-index sets and maps for phase-local side
// tables keyed by block or operation indices.
//
// Both containers use the sparse/dense pair representation: membership tests,
// inserts and Clear are O(1), iteration is in insertion order, and no memory
// is allocated after construction.
package sparse

import "golang.org/x/exp/constraints"

// Set is a set of small non-negative integers drawn from [0, universe).
type Set[K constraints.Unsigned] struct {
	dense  []K
	sparse []int32
}

// NewSet returns an empty set able to hold keys in [0, universe).
func NewSet[K constraints.Unsigned](universe int) *Set[K] {
	return &Set[K]{
		dense:  make([]K, 0, universe),
		sparse: make([]int32, universe),
	}
}

// Cap returns the size of the key universe.
func (s *Set[K]) Cap() int {
	return len(s.sparse)
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return len(s.dense)
}

// Contains reports whether k is in the set.
func (s *Set[K]) Contains(k K) bool {
	if uint64(k) >= uint64(len(s.sparse)) {
		return false
	}
	i := s.sparse[k]
	return int(i) < len(s.dense) && s.dense[i] == k
}

// Add inserts k. It reports whether k was newly added.
func (s *Set[K]) Add(k K) bool {
	if s.Contains(k) {
		return false
	}
	s.sparse[k] = int32(len(s.dense)) //nolint:gosec // G115: bounded by universe
	s.dense = append(s.dense, k)
	return true
}

// Remove deletes k if present.
func (s *Set[K]) Remove(k K) {
	if !s.Contains(k) {
		return
	}
	i := s.sparse[k]
	last := s.dense[len(s.dense)-1]
	s.dense[i] = last
	s.sparse[last] = i
	s.dense = s.dense[:len(s.dense)-1]
}

// Clear empties the set without releasing memory.
func (s *Set[K]) Clear() {
	s.dense = s.dense[:0]
}

// Contents returns the keys in insertion order (modulo removals).
// The slice aliases internal storage and is invalidated by the next update.
func (s *Set[K]) Contents() []K {
	return s.dense
}

// IsSubsetOf reports whether every key of s is in other.
func (s *Set[K]) IsSubsetOf(other *Set[K]) bool {
	for _, k := range s.dense {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}
