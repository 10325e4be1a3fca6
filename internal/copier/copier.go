// Package copier rebuilds a graph block by block through a stack of
// reducers. Each reducer sees every block and every operation of the input
// graph and either handles it or passes it on to the next reducer; the
// bottom of the stack copies the operation unchanged.
package copier

import (
	"fmt"

	"cfgprep/internal/ir"
)

// OpNext continues with the rest of the reducer stack for input op in.
type OpNext func(in ir.OpIndex) ir.OpIndex

// BlockNext continues with the rest of the reducer stack for input block b.
type BlockNext func(b ir.BlockIndex) bool

// Reducer is one layer of a copying pass.
//
// ReduceBlock reports whether input block b is copied at all. The default
// copies a block only once some emitted terminator has referenced it.
//
// ReduceOperation returns the output operation that stands for input op in,
// or ir.InvalidOp when the operation is dropped.
type Reducer interface {
	ReduceBlock(a *Assembler, b ir.BlockIndex, next BlockNext) bool
	ReduceOperation(a *Assembler, in ir.OpIndex, next OpNext) ir.OpIndex
}

// Forward is a Reducer that passes everything on. Embed it to override only
// one hook.
type Forward struct{}

// ReduceBlock forwards to next.
func (Forward) ReduceBlock(_ *Assembler, b ir.BlockIndex, next BlockNext) bool { return next(b) }

// ReduceOperation forwards to next.
func (Forward) ReduceOperation(_ *Assembler, in ir.OpIndex, next OpNext) ir.OpIndex {
	return next(in)
}

type phiFixup struct {
	out ir.OpIndex
	in  ir.OpIndex
}

// Assembler builds the output graph and tracks the input-to-output mapping
// of operations and blocks.
type Assembler struct {
	in  *ir.Graph
	out *ir.Graph

	opMap     []ir.OpIndex
	blockMap  []ir.BlockIndex
	origin    []ir.BlockIndex
	bindOrder []ir.BlockIndex
	fixups    []phiFixup
	current   ir.BlockIndex

	reduceBlock BlockNext
	reduceOp    OpNext
}

// Copy builds a new graph from in through reducers; reducers[0] is the
// outermost layer. The output blocks keep the relative order of the input.
func Copy(in *ir.Graph, reducers ...Reducer) *ir.Graph {
	a := newAssembler(in, reducers)
	a.run()
	return a.out
}

func newAssembler(in *ir.Graph, reducers []Reducer) *Assembler {
	a := &Assembler{
		in:       in,
		out:      ir.NewGraph(in.Name),
		opMap:    make([]ir.OpIndex, in.OpCount()),
		blockMap: make([]ir.BlockIndex, in.BlockCount()),
		current:  ir.InvalidBlock,
	}
	for i := range a.opMap {
		a.opMap[i] = ir.InvalidOp
	}
	for i := range a.blockMap {
		a.blockMap[i] = ir.InvalidBlock
	}

	a.reduceBlock = a.defaultBlock
	a.reduceOp = a.copyOperation
	for i := len(reducers) - 1; i >= 0; i-- {
		r, nextBlock, nextOp := reducers[i], a.reduceBlock, a.reduceOp
		a.reduceBlock = func(b ir.BlockIndex) bool { return r.ReduceBlock(a, b, nextBlock) }
		a.reduceOp = func(op ir.OpIndex) ir.OpIndex { return r.ReduceOperation(a, op, nextOp) }
	}
	return a
}

func (a *Assembler) run() {
	if a.in.BlockCount() == 0 {
		return
	}
	a.MapBlock(a.in.Entry())

	for i := 0; i < a.in.BlockCount(); i++ {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		if !a.reduceBlock(b) {
			continue
		}
		ob := a.MapBlock(b)
		a.out.Bind(ob)
		a.bindOrder = append(a.bindOrder, ob)
		a.current = b
		for op := range a.in.OperationsOf(b).All() {
			a.opMap[op] = a.reduceOp(op)
		}
		if a.out.Bound().Valid() {
			panic(fmt.Sprintf("copier: %s was copied without a terminator", b))
		}
	}
	a.current = ir.InvalidBlock

	a.fixPhis()
	a.demoteMerges()
	a.out.ReorderBlocks(a.bindOrder)
}

func (a *Assembler) defaultBlock(b ir.BlockIndex) bool {
	return a.blockMap[b].Valid()
}

// Input returns the graph being copied.
func (a *Assembler) Input() *ir.Graph { return a.in }

// Output returns the graph under construction.
func (a *Assembler) Output() *ir.Graph { return a.out }

// CurrentBlock returns the input block being copied.
func (a *Assembler) CurrentBlock() ir.BlockIndex { return a.current }

// Emit appends op to the output block being built.
func (a *Assembler) Emit(op ir.Operation) ir.OpIndex {
	return a.out.AddOperation(op)
}

// MapBlock returns the output block for input block b, creating it on first
// use.
func (a *Assembler) MapBlock(b ir.BlockIndex) ir.BlockIndex {
	if ob := a.blockMap[b]; ob.Valid() {
		return ob
	}
	src := a.in.Block(b)
	ob := a.out.AddBlock(src.Kind)
	a.out.Block(ob).Deferred = src.Deferred
	a.blockMap[b] = ob
	a.origin = append(a.origin, b)
	return ob
}

// MapValue returns the output operation standing for input op in, or
// ir.InvalidOp if it has not been emitted.
func (a *Assembler) MapValue(in ir.OpIndex) ir.OpIndex {
	return a.opMap[in]
}

// MapInputs maps the inputs of an operation. Every input must already have
// been emitted.
func (a *Assembler) MapInputs(inputs []ir.OpIndex) []ir.OpIndex {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]ir.OpIndex, len(inputs))
	for i, in := range inputs {
		v := a.opMap[in]
		if !v.Valid() {
			panic(fmt.Sprintf("copier: input %s was not emitted", in))
		}
		out[i] = v
	}
	return out
}

// PhiInputs returns the mapped inputs of input phi in, one per predecessor
// the output block has so far. The list is complete unless the phi sits in
// a loop header whose backedges have not been copied yet; missing values
// are ir.InvalidOp.
func (a *Assembler) PhiInputs(in ir.OpIndex) ([]ir.OpIndex, bool) {
	b := a.in.BlockOf(in)
	op := a.in.Op(in)
	preds := a.in.Predecessors(b)
	used := make([]bool, len(preds))

	outPreds := a.out.Predecessors(a.blockMap[b])
	inputs := make([]ir.OpIndex, 0, len(outPreds))
	for _, p := range outPreds {
		src := a.origin[p]
		j := -1
		for k, q := range preds {
			if q == src && !used[k] {
				j = k
				break
			}
		}
		if j < 0 {
			panic(fmt.Sprintf("copier: phi %s in %s has no input for predecessor %s", in, b, src))
		}
		used[j] = true
		inputs = append(inputs, a.opMap[op.Inputs[j]])
	}
	return inputs, !a.in.Block(b).IsLoop()
}

func (a *Assembler) copyOperation(in ir.OpIndex) ir.OpIndex {
	op := *a.in.Op(in)
	switch op.Kind {
	case ir.OpPhi:
		inputs, complete := a.PhiInputs(in)
		op.Inputs = inputs
		out := a.Emit(op)
		if !complete {
			a.fixups = append(a.fixups, phiFixup{out: out, in: in})
		}
		return out
	case ir.OpGoto:
		op.Goto.Target = a.MapBlock(op.Goto.Target)
	case ir.OpBranch:
		op.Branch.True = a.MapBlock(op.Branch.True)
		op.Branch.False = a.MapBlock(op.Branch.False)
	}
	op.Inputs = a.MapInputs(op.Inputs)
	return a.Emit(op)
}

// fixPhis fills in loop phi inputs now that every backedge exists.
func (a *Assembler) fixPhis() {
	for _, f := range a.fixups {
		inputs, _ := a.PhiInputs(f.in)
		for _, v := range inputs {
			if !v.Valid() {
				panic(fmt.Sprintf("copier: loop phi %s has an input that was never emitted", f.in))
			}
		}
		a.out.Op(f.out).Inputs = inputs
	}
}

// demoteMerges turns merges left with a single predecessor and no phis into
// plain blocks.
func (a *Assembler) demoteMerges() {
	for i := 0; i < a.out.BlockCount(); i++ {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		blk := a.out.Block(b)
		if !blk.IsMerge() || a.out.PredecessorCount(b) != 1 {
			continue
		}
		hasPhi := false
		for op := range blk.Ops().All() {
			if a.out.Op(op).Kind == ir.OpPhi {
				hasPhi = true
				break
			}
		}
		if !hasPhi {
			blk.Kind = ir.BlockPlain
		}
	}
}
