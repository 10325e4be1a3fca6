package sparse

import "testing"

func TestSetAddContainsRemove(t *testing.T) {
	s := NewSet[uint32](8)
	if !s.Add(3) || !s.Add(5) || s.Add(3) {
		t.Fatalf("unexpected Add results")
	}
	if !s.Contains(3) || !s.Contains(5) || s.Contains(4) {
		t.Fatalf("membership wrong: %v", s.Contents())
	}
	if s.Contains(100) {
		t.Fatalf("out-of-universe key reported present")
	}
	s.Remove(3)
	if s.Contains(3) || !s.Contains(5) || s.Len() != 1 {
		t.Fatalf("after Remove: %v", s.Contents())
	}
	s.Clear()
	if s.Len() != 0 || s.Contains(5) {
		t.Fatalf("after Clear: %v", s.Contents())
	}
}

func TestSetStaleSparseSlot(t *testing.T) {
	// A cleared set must not resurrect keys through stale sparse slots.
	s := NewSet[uint32](4)
	s.Add(2)
	s.Clear()
	s.Add(1)
	if s.Contains(2) {
		t.Fatalf("stale key 2 reported present")
	}
}

func TestSetSubset(t *testing.T) {
	a := NewSet[uint32](6)
	b := NewSet[uint32](6)
	for _, k := range []uint32{1, 2} {
		a.Add(k)
	}
	for _, k := range []uint32{0, 1, 2, 5} {
		b.Add(k)
	}
	if !a.IsSubsetOf(b) {
		t.Errorf("expected a ⊆ b")
	}
	if b.IsSubsetOf(a) {
		t.Errorf("expected b ⊄ a")
	}
}

func TestMap(t *testing.T) {
	m := NewMap[uint32, string](10)
	m.Set(7, "seven")
	m.Set(2, "two")
	m.Set(7, "SEVEN")
	if v, ok := m.Get(7); !ok || v != "SEVEN" {
		t.Fatalf("Get(7) = %q, %v", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	m.Remove(7)
	if m.Contains(7) {
		t.Fatalf("7 still present after Remove")
	}
	if v, ok := m.Get(2); !ok || v != "two" {
		t.Fatalf("Get(2) = %q, %v after removing 7", v, ok)
	}
	if _, ok := m.Get(42); ok {
		t.Fatalf("out-of-universe key reported present")
	}
}
