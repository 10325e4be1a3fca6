package dce_test

import (
	"testing"

	"cfgprep/internal/dce"
)

func latticeElements() []dce.ControlState {
	return []dce.ControlState{
		dce.Unreachable(),
		dce.BlockState(0),
		dce.BlockState(1),
		dce.BlockState(7),
		dce.NotEliminatable(),
	}
}

func TestControlStateJoinLaws(t *testing.T) {
	elems := latticeElements()
	for _, a := range elems {
		if got := dce.Unreachable().Join(a); got != a {
			t.Errorf("unreachable ⊔ %s = %s, want %s", a, got, a)
		}
		if got := a.Join(dce.NotEliminatable()); !got.IsNotEliminatable() {
			t.Errorf("%s ⊔ not-eliminatable = %s", a, got)
		}
		if got := a.Join(a); got != a {
			t.Errorf("%s ⊔ %s = %s, want idempotence", a, a, got)
		}
		for _, b := range elems {
			if a.Join(b) != b.Join(a) {
				t.Errorf("%s ⊔ %s is not commutative", a, b)
			}
			for _, c := range elems {
				if a.Join(b).Join(c) != a.Join(b.Join(c)) {
					t.Errorf("(%s ⊔ %s) ⊔ %s is not associative", a, b, c)
				}
			}
		}
	}
}

func TestControlStateDistinctBlocksJoinToTop(t *testing.T) {
	got := dce.BlockState(1).Join(dce.BlockState(2))
	if !got.IsNotEliminatable() {
		t.Fatalf("block(b1) ⊔ block(b2) = %s, want not-eliminatable", got)
	}
	if _, ok := got.Target(); ok {
		t.Fatal("top element must not carry a target")
	}
	if b, ok := dce.BlockState(3).Target(); !ok || b != 3 {
		t.Fatalf("Target() = %s, %v", b, ok)
	}
}

func TestControlStateString(t *testing.T) {
	tests := []struct {
		state dce.ControlState
		want  string
	}{
		{dce.Unreachable(), "unreachable"},
		{dce.BlockState(4), "block(b4)"},
		{dce.NotEliminatable(), "not-eliminatable"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
