package rpo_test

import (
	"math/rand/v2"
	"slices"
	"testing"

	"cfgprep/internal/ir"
	"cfgprep/internal/rpo"
	"cfgprep/internal/testkit"
)

func blocks(ids ...int) []ir.BlockIndex {
	out := make([]ir.BlockIndex, len(ids))
	for i, id := range ids {
		out[i] = ir.BlockIndex(id) //nolint:gosec // test fixture
	}
	return out
}

func TestSpecialRPOKnownOrders(t *testing.T) {
	tests := []struct {
		name  string
		succs [][]int
		loops []int
		want  []ir.BlockIndex
	}{
		{
			name:  "single block",
			succs: [][]int{{}},
			want:  blocks(0),
		},
		{
			name:  "straight line",
			succs: [][]int{{1}, {2}, {}},
			want:  blocks(0, 1, 2),
		},
		{
			// B0 -> B1, B1 -> {B2, B3}, B2 -> B1.
			name:  "simple loop",
			succs: [][]int{{1}, {2, 3}, {1}, {}},
			loops: []int{1},
			want:  blocks(0, 1, 2, 3),
		},
		{
			name:  "simple loop exit first",
			succs: [][]int{{1}, {3, 2}, {1}, {}},
			loops: []int{1},
			want:  blocks(0, 1, 2, 3),
		},
		{
			// B0 -> {B1, B2}, both -> B3.
			name:  "diamond",
			succs: [][]int{{1, 2}, {3}, {3}, {}},
			want:  blocks(0, 2, 1, 3),
		},
		{
			name:  "self loop",
			succs: [][]int{{1}, {1, 2}, {}},
			loops: []int{1},
			want:  blocks(0, 1, 2),
		},
		{
			// The exit B4 is reached from inside the loop before the
			// backedge block B3 in DFS order; it must still follow the body.
			name:  "exit reached before latch",
			succs: [][]int{{1}, {4, 2}, {3}, {1}, {}},
			loops: []int{1},
			want:  blocks(0, 1, 2, 3, 4),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testkit.Shape(tt.name, tt.succs, tt.loops...)
			got := rpo.ComputeSpecialRPO(g)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindBackedges(t *testing.T) {
	tests := []struct {
		name  string
		succs [][]int
		want  []rpo.Backedge
	}{
		{
			name:  "loop free",
			succs: [][]int{{1, 2}, {3}, {3}, {}},
		},
		{
			name:  "self loop",
			succs: [][]int{{1}, {1, 2}, {}},
			want:  []rpo.Backedge{{From: 1, Header: 1}},
		},
		{
			// B0 -> B1 -> B2 -> {B2, B3}, B3 -> {B1, B4}.
			name:  "nested",
			succs: [][]int{{1}, {2}, {2, 3}, {1, 4}, {}},
			want:  []rpo.Backedge{{From: 2, Header: 2}, {From: 3, Header: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rpo.FindBackedges(testkit.Shape(tt.name, tt.succs))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("backedges = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpecialRPOLoopMembers(t *testing.T) {
	g := testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}, 1)
	nb := rpo.NewNumberer(g)
	order := nb.Compute()

	loops := nb.Loops()
	if len(loops) != 1 {
		t.Fatalf("loops = %d, want 1", len(loops))
	}
	l := loops[0]
	if l.Header != 1 {
		t.Fatalf("header = %s, want b1", l.Header)
	}
	if got := l.Members.Contents(); !sameBlocks(got, blocks(1, 2)) {
		t.Fatalf("members = %v, want [b1 b2]", got)
	}
	if nb.LoopOf(1) != 0 || nb.LoopOf(2) != -1 {
		t.Fatalf("LoopOf: b1=%d b2=%d", nb.LoopOf(1), nb.LoopOf(2))
	}
	pos1 := slices.Index(order, 1)
	if order[pos1+1] != 2 {
		t.Fatalf("b2 does not immediately follow b1 in %v", order)
	}
}

func TestSpecialRPONestedLoops(t *testing.T) {
	// B1 is the outer header, B2 the inner one.
	//   B0 -> B1
	//   B1 -> {B2, B6}
	//   B2 -> {B3, B5}
	//   B3 -> B4, B4 -> B2   (inner latch)
	//   B5 -> B1             (outer latch)
	succs := [][]int{{1}, {6, 2}, {5, 3}, {4}, {2}, {1}, {}}
	g := testkit.Shape("nested", succs, 1, 2)
	nb := rpo.NewNumberer(g)
	order := nb.Compute()

	if err := testkit.CheckPermutation(order, g.BlockCount()); err != nil {
		t.Fatal(err)
	}
	loops := nb.Loops()
	if len(loops) != 2 {
		t.Fatalf("loops = %d, want 2", len(loops))
	}
	for i := range loops {
		l := &loops[i]
		if err := testkit.CheckContiguous(order, l.Header, l.Members.Contents()); err != nil {
			t.Fatal(err)
		}
	}
	inner, outer := nb.LoopOf(2), nb.LoopOf(1)
	if nb.Parent(inner) != outer || nb.Parent(outer) != -1 {
		t.Fatalf("parents: inner=%d outer=%d", nb.Parent(inner), nb.Parent(outer))
	}
	depths := nb.LoopDepths()
	if want := []int{0, 1, 2, 2, 2, 1, 0}; !slices.Equal(depths, want) {
		t.Fatalf("depths = %v, want %v", depths, want)
	}
	if order[len(order)-1] != 6 {
		t.Fatalf("exit b6 should come last: %v", order)
	}
}

func TestSpecialRPOLoopFreeMatchesReversePostorder(t *testing.T) {
	tests := []struct {
		name  string
		succs [][]int
	}{
		{"diamond", [][]int{{1, 2}, {3}, {3}, {}}},
		{"two diamonds", [][]int{{1, 2}, {3}, {3}, {4, 5}, {6}, {6}, {}}},
		{"skip edge", [][]int{{1, 3}, {2}, {3}, {}}},
		{"wide", [][]int{{1, 2}, {3, 4}, {4, 5}, {6}, {6}, {6}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testkit.Shape(tt.name, tt.succs)
			got := rpo.ComputeSpecialRPO(g)
			if want := testkit.ReversePostorder(g); !slices.Equal(got, want) {
				t.Fatalf("order = %v, want %v", got, want)
			}
		})
	}
}

func TestSpecialRPOStructuredGraphs(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := range 200 {
		s := testkit.RandomStructured(r, 4+i%24)
		g := s.Graph("random")
		nb := rpo.NewNumberer(g)
		order := nb.Compute()

		if err := testkit.CheckPermutation(order, g.BlockCount()); err != nil {
			t.Fatalf("graph %d: %v", i, err)
		}
		if order[0] != g.Entry() {
			t.Fatalf("graph %d: entry not first in %v", i, order)
		}
		loops := nb.Loops()
		if len(loops) != len(s.Loops) {
			t.Fatalf("graph %d: found %d loops, want %d", i, len(loops), len(s.Loops))
		}
		headers := make([]ir.BlockIndex, 0, len(loops))
		for j := range loops {
			l := &loops[j]
			headers = append(headers, l.Header)
			want, ok := s.Loops[int(l.Header)]
			if !ok {
				t.Fatalf("graph %d: unexpected header %s", i, l.Header)
			}
			if !sameBlocks(l.Members.Contents(), blocks(want...)) {
				t.Fatalf("graph %d: loop %s members %v, want %v", i, l.Header, l.Members.Contents(), want)
			}
			if err := testkit.CheckContiguous(order, l.Header, l.Members.Contents()); err != nil {
				t.Fatalf("graph %d: %v", i, err)
			}
		}
		if err := testkit.CheckForwardEdges(g, order, headers); err != nil {
			t.Fatalf("graph %d: %v", i, err)
		}
	}
}

func TestSpecialRPOReorderedGraphValidates(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	for i := range 50 {
		g := testkit.RandomStructured(r, 12).Graph("random")
		g.ReorderBlocks(rpo.ComputeSpecialRPO(g))
		if err := ir.Validate(g); err != nil {
			t.Fatalf("graph %d: %v", i, err)
		}
		// Once reordered, the order is the identity.
		order := rpo.ComputeSpecialRPO(g)
		for pos, b := range order {
			if int(b) != pos {
				t.Fatalf("graph %d: reordered graph is not in special RPO: %v", i, order)
			}
		}
	}
}

func TestSpecialRPOPanicsOnUnreachableBlock(t *testing.T) {
	g := testkit.Shape("orphan", [][]int{{}, {}})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unreachable block")
		}
	}()
	rpo.ComputeSpecialRPO(g)
}

func sameBlocks(a, b []ir.BlockIndex) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
