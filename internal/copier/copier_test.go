package copier_test

import (
	"slices"
	"testing"

	"cfgprep/internal/copier"
	"cfgprep/internal/ir"
	"cfgprep/internal/testkit"
)

type recorder struct {
	name string
	log  *[]string
}

func (r recorder) ReduceBlock(_ *copier.Assembler, b ir.BlockIndex, next copier.BlockNext) bool {
	*r.log = append(*r.log, r.name+":"+b.String())
	return next(b)
}

func (r recorder) ReduceOperation(_ *copier.Assembler, in ir.OpIndex, next copier.OpNext) ir.OpIndex {
	*r.log = append(*r.log, r.name+":"+in.String())
	return next(in)
}

// dropEffects removes every store and leaves the rest to the stack.
type dropEffects struct {
	copier.Forward
}

func (dropEffects) ReduceOperation(a *copier.Assembler, in ir.OpIndex, next copier.OpNext) ir.OpIndex {
	if op := a.Input().Op(in); op.Kind == ir.OpOther && op.Other.Mnemonic == "store" {
		return ir.InvalidOp
	}
	return next(in)
}

func loopGraph() *ir.Graph {
	// b0: v0 = zero; goto b1
	// b1: v2 = phi v0, v5; v3 = cond v2; branch v3 ? b2 : b3
	// b2: v5 = inc v2; store! v5; goto b1
	// b3: return v2
	g := ir.NewGraph("loop")
	b0 := g.AddBlock(ir.BlockEntry)
	b1 := g.AddBlock(ir.BlockLoop)
	b2 := g.AddBlock(ir.BlockPlain)
	b3 := g.AddBlock(ir.BlockPlain)
	g.Bind(b0)
	zero := g.AddOperation(ir.Pure("zero"))
	g.AddOperation(ir.Goto(b1))
	g.Bind(b1)
	phi := g.AddOperation(ir.Phi(ir.RepWord64, zero, ir.InvalidOp))
	cond := g.AddOperation(ir.Pure("cond", phi))
	g.AddOperation(ir.Branch(cond, b2, b3, ir.HintTrue))
	g.Bind(b2)
	inc := g.AddOperation(ir.Pure("inc", phi))
	g.AddOperation(ir.Effect("store", inc))
	g.AddOperation(ir.Goto(b1))
	g.Bind(b3)
	g.AddOperation(ir.Return(phi))
	g.Op(phi).Inputs[1] = inc
	return g
}

func TestCopyIdentity(t *testing.T) {
	in := loopGraph()
	in.Block(3).Deferred = true
	out := copier.Copy(in)

	if err := ir.Validate(out); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.BlockCount() != in.BlockCount() || out.OpCount() != in.OpCount() {
		t.Fatalf("got %d blocks / %d ops, want %d / %d",
			out.BlockCount(), out.OpCount(), in.BlockCount(), in.OpCount())
	}
	for i := 0; i < in.OpCount(); i++ {
		idx := ir.OpIndex(i) //nolint:gosec // test fixture
		if got, want := out.Op(idx).String(), in.Op(idx).String(); got != want {
			t.Errorf("%s = %q, want %q", idx, got, want)
		}
	}
	if !out.Block(3).Deferred {
		t.Error("deferred flag was not carried over")
	}
	if out.Name != in.Name {
		t.Errorf("name = %q, want %q", out.Name, in.Name)
	}
}

func TestCopyStackOrder(t *testing.T) {
	var log []string
	copier.Copy(testkit.Shape("line", [][]int{{1}, {}}),
		recorder{name: "outer", log: &log},
		recorder{name: "inner", log: &log},
	)
	want := []string{
		"outer:b0", "inner:b0",
		"outer:v0", "inner:v0",
		"outer:b1", "inner:b1",
		"outer:v1", "inner:v1",
	}
	if !slices.Equal(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestCopyDropsOperations(t *testing.T) {
	out := copier.Copy(loopGraph(), dropEffects{})
	if err := ir.Validate(out); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.OpCount() != 8 {
		t.Fatalf("op count = %d, want 8", out.OpCount())
	}
	for i := 0; i < out.OpCount(); i++ {
		if op := out.Op(ir.OpIndex(i)); op.Other.Mnemonic == "store" { //nolint:gosec // test fixture
			t.Fatalf("store survived at v%d", i)
		}
	}
	phi := out.Op(out.OperationsOf(1).Begin)
	if phi.Kind != ir.OpPhi || out.Op(phi.Inputs[1]).Other.Mnemonic != "inc" {
		t.Fatalf("loop phi = %s", phi)
	}
}

func TestCopySkipsUnreferencedBlocks(t *testing.T) {
	// b1 is never jumped to once the entry's goto is redirected.
	in := testkit.Shape("redirect", [][]int{{1}, {2}, {}})
	redirect := redirectEntry{to: 2}
	out := copier.Copy(in, redirect)
	if out.BlockCount() != 2 {
		t.Fatalf("block count = %d, want 2", out.BlockCount())
	}
	if err := ir.Validate(out); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

type redirectEntry struct {
	copier.Forward
	to ir.BlockIndex
}

func (r redirectEntry) ReduceOperation(a *copier.Assembler, in ir.OpIndex, next copier.OpNext) ir.OpIndex {
	if a.CurrentBlock() == a.Input().Entry() && a.Input().Op(in).Kind == ir.OpGoto {
		return a.Emit(ir.Goto(a.MapBlock(r.to)))
	}
	return next(in)
}

func TestCopyKeepsOrderOfLazilyCreatedBlocks(t *testing.T) {
	// b0 -> {b2, b1}: the output block for b2 is created first, but b1 is
	// copied first and the result keeps the input order.
	in := testkit.Shape("diamond", [][]int{{2, 1}, {3}, {3}, {}})
	out := copier.Copy(in)
	for b := 0; b < out.BlockCount(); b++ {
		blk := ir.BlockIndex(b) //nolint:gosec // test fixture
		if got, want := out.Successors(blk), in.Successors(blk); !slices.Equal(got, want) {
			t.Errorf("%s successors = %v, want %v", blk, got, want)
		}
	}
}
