package ir_test

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"cfgprep/internal/ir"
)

// buildDiamond builds b0 -> {b1, b2} -> b3 with a phi in b3.
func buildDiamond(t *testing.T) *ir.Graph {
	t.Helper()
	g := ir.NewGraph("diamond")
	b0 := g.AddBlock(ir.BlockEntry)
	b1 := g.AddBlock(ir.BlockPlain)
	b2 := g.AddBlock(ir.BlockPlain)
	b3 := g.AddBlock(ir.BlockMerge)

	g.Bind(b0)
	p := g.AddOperation(ir.Pure("param"))
	g.AddOperation(ir.Branch(p, b1, b2, ir.HintNone))

	g.Bind(b1)
	one := g.AddOperation(ir.Pure("const"))
	g.AddOperation(ir.Goto(b3))

	g.Bind(b2)
	two := g.AddOperation(ir.Pure("const"))
	g.AddOperation(ir.Goto(b3))

	g.Bind(b3)
	phi := g.AddOperation(ir.Phi(ir.RepWord32, one, two))
	g.AddOperation(ir.Return(phi))
	return g
}

func TestGraph_ContiguousRanges(t *testing.T) {
	g := buildDiamond(t)
	if g.BlockCount() != 4 || g.OpCount() != 8 {
		t.Fatalf("got %d blocks / %d ops, want 4 / 8", g.BlockCount(), g.OpCount())
	}
	want := []ir.OpRange{{Begin: 0, End: 2}, {Begin: 2, End: 4}, {Begin: 4, End: 6}, {Begin: 6, End: 8}}
	for b, r := range want {
		got := g.OperationsOf(ir.BlockIndex(b))
		if got != r {
			t.Errorf("b%d range = %v, want %v", b, got, r)
		}
		for i := range got.All() {
			if g.BlockOf(i) != ir.BlockIndex(b) {
				t.Errorf("BlockOf(%s) = %s, want b%d", i, g.BlockOf(i), b)
			}
		}
	}
	if err := ir.Validate(g); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGraph_PredecessorChainOrder(t *testing.T) {
	g := buildDiamond(t)
	if got := g.Predecessors(3); !slices.Equal(got, []ir.BlockIndex{1, 2}) {
		t.Fatalf("Predecessors(b3) = %v, want [b1 b2]", got)
	}
	// The raw chain runs newest first.
	e := g.LastPredecessor(3)
	if g.EdgeSource(e) != 2 {
		t.Fatalf("last predecessor = %s, want b2", g.EdgeSource(e))
	}
	e = g.NextPredecessor(e)
	if g.EdgeSource(e) != 1 {
		t.Fatalf("next predecessor = %s, want b1", g.EdgeSource(e))
	}
	if g.NextPredecessor(e) != ir.NoEdge {
		t.Fatalf("chain not terminated")
	}
	if g.PredecessorCount(0) != 0 {
		t.Fatalf("entry has predecessors")
	}
}

func TestGraph_ReorderBlocks(t *testing.T) {
	g := buildDiamond(t)
	g.ReorderBlocks([]ir.BlockIndex{0, 2, 1, 3})

	if err := ir.Validate(g); err != nil {
		t.Fatalf("Validate after reorder: %v", err)
	}
	br := g.Op(g.Terminator(0))
	if br.Kind != ir.OpBranch || br.Branch.True != 2 || br.Branch.False != 1 {
		t.Fatalf("branch not remapped: %s", br)
	}
	// Old b2 (now b1) holds the second constant, which now comes first.
	if got := g.OperationsOf(1); got != (ir.OpRange{Begin: 2, End: 4}) {
		t.Fatalf("b1 range = %v", got)
	}
	phi := g.Op(6)
	if phi.Kind != ir.OpPhi {
		t.Fatalf("v6 = %s, want phi", phi)
	}
	// Phi inputs follow their values; predecessor order is unchanged.
	if !slices.Equal(phi.Inputs, []ir.OpIndex{4, 2}) {
		t.Fatalf("phi inputs = %v, want [v4 v2]", phi.Inputs)
	}
	if got := g.Predecessors(3); !slices.Equal(got, []ir.BlockIndex{2, 1}) {
		t.Fatalf("Predecessors(b3) = %v, want [b2 b1]", got)
	}
	for b := 0; b < g.BlockCount(); b++ {
		if g.Block(ir.BlockIndex(b)).Index() != ir.BlockIndex(b) {
			t.Errorf("block %d reports index %s", b, g.Block(ir.BlockIndex(b)).Index())
		}
	}
}

func TestGraph_ReorderBlocksRejectsNonBijection(t *testing.T) {
	g := buildDiamond(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for duplicated block")
		}
	}()
	g.ReorderBlocks([]ir.BlockIndex{0, 1, 1, 3})
}

func TestGraph_OutOfRangePanics(t *testing.T) {
	g := buildDiamond(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range op")
		}
	}()
	_ = g.Op(ir.OpIndex(100))
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name  string
		build func() *ir.Graph
		want  string
	}{
		{
			name: "unterminated",
			build: func() *ir.Graph {
				g := ir.NewGraph("f")
				g.Bind(g.AddBlock(ir.BlockEntry))
				g.AddOperation(ir.Pure("x"))
				return g
			},
			want: "unterminated block",
		},
		{
			name: "no predecessors",
			build: func() *ir.Graph {
				g := ir.NewGraph("f")
				b0 := g.AddBlock(ir.BlockEntry)
				b1 := g.AddBlock(ir.BlockPlain)
				g.Bind(b0)
				g.AddOperation(ir.Return())
				g.Bind(b1)
				g.AddOperation(ir.Return())
				return g
			},
			want: "b1: block has no predecessors",
		},
		{
			name: "phi arity",
			build: func() *ir.Graph {
				g := ir.NewGraph("f")
				b0 := g.AddBlock(ir.BlockEntry)
				b1 := g.AddBlock(ir.BlockMerge)
				g.Bind(b0)
				x := g.AddOperation(ir.Pure("x"))
				g.AddOperation(ir.Goto(b1))
				g.Bind(b1)
				g.AddOperation(ir.Phi(ir.RepWord32, x, x))
				g.AddOperation(ir.Return())
				return g
			},
			want: "has 2 inputs for 1 predecessors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ir.Validate(tt.build())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestDump(t *testing.T) {
	g := buildDiamond(t)
	var buf bytes.Buffer
	if err := ir.Dump(&buf, g); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"graph diamond: blocks=4 ops=8",
		"b3 (merge) <- b1, b2:",
		"v6 = phi.word32 v2, v4",
		"v1 = branch v0 ? b1 : b2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}
