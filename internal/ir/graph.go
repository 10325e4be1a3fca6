// Package ir defines the block-structured operation graph consumed and
// produced by the control-flow preparation passes.
//
// Operations and blocks are addressed by dense indices. A block's operations
// occupy a contiguous index range that ends with its terminator, and
// predecessors are kept as a singly-linked chain of edge records so that
// adding an edge is O(1) and predecessor order is the insertion order.
package ir

import "fmt"

// Graph owns the operations and blocks of one function.
type Graph struct {
	Name string

	ops     []Operation
	opBlock []BlockIndex
	blocks  []Block
	edges   []predEdge
	bound   BlockIndex
}

// NewGraph returns an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name, bound: InvalidBlock}
}

// BlockCount returns the number of blocks.
func (g *Graph) BlockCount() int { return len(g.blocks) }

// OpCount returns the number of operations.
func (g *Graph) OpCount() int { return len(g.ops) }

// Entry returns the entry block, which is always block 0.
func (g *Graph) Entry() BlockIndex {
	if len(g.blocks) == 0 {
		return InvalidBlock
	}
	return 0
}

// AddBlock appends a new, empty block.
func (g *Graph) AddBlock(kind BlockKind) BlockIndex {
	idx := nextBlockIndex(len(g.blocks))
	g.blocks = append(g.blocks, Block{
		Kind:     kind,
		index:    idx,
		begin:    InvalidOp,
		end:      InvalidOp,
		lastPred: NoEdge,
	})
	return idx
}

// Bind makes b the block that receives subsequent operations. The block
// must be empty and the previously bound block must be terminated.
func (g *Graph) Bind(b BlockIndex) {
	if g.bound.Valid() {
		panic(fmt.Sprintf("ir: binding %s while %s is not terminated", b, g.bound))
	}
	blk := g.Block(b)
	if blk.begin.Valid() {
		panic(fmt.Sprintf("ir: block %s is already bound", b))
	}
	g.bound = b
}

// Bound returns the block currently receiving operations.
func (g *Graph) Bound() BlockIndex { return g.bound }

// AddOperation appends op to the bound block. A terminator closes the
// block and links it as a predecessor of each of its successors.
func (g *Graph) AddOperation(op Operation) OpIndex {
	if !g.bound.Valid() {
		panic(fmt.Sprintf("ir: adding %s outside of a block", op.Kind))
	}
	idx := nextOpIndex(len(g.ops))
	blk := &g.blocks[g.bound]
	if !blk.begin.Valid() {
		blk.begin = idx
	}
	blk.end = idx + 1
	g.ops = append(g.ops, op)
	g.opBlock = append(g.opBlock, g.bound)

	if op.IsTerminator() {
		from := g.bound
		g.bound = InvalidBlock
		for _, succ := range op.Successors() {
			g.addPredecessor(succ, from)
		}
	}
	return idx
}

func (g *Graph) addPredecessor(to, from BlockIndex) {
	blk := g.Block(to)
	e := PredEdge(len(g.edges)) //nolint:gosec // G115: edges never exceed ops
	g.edges = append(g.edges, predEdge{from: from, next: blk.lastPred})
	blk.lastPred = e
	blk.npreds++
}

// Op returns the operation at i. The pointer stays valid until the next
// AddOperation or ReorderBlocks.
func (g *Graph) Op(i OpIndex) *Operation {
	if int(i) >= len(g.ops) {
		panic(fmt.Sprintf("ir: operation %s out of range [0,%d)", i, len(g.ops)))
	}
	return &g.ops[i]
}

// Block returns the block at b.
func (g *Graph) Block(b BlockIndex) *Block {
	if int(b) >= len(g.blocks) {
		panic(fmt.Sprintf("ir: block %s out of range [0,%d)", b, len(g.blocks)))
	}
	return &g.blocks[b]
}

// BlockOf returns the block that contains operation i.
func (g *Graph) BlockOf(i OpIndex) BlockIndex {
	if int(i) >= len(g.opBlock) {
		panic(fmt.Sprintf("ir: operation %s out of range [0,%d)", i, len(g.opBlock)))
	}
	return g.opBlock[i]
}

// OperationsOf returns the operation range of block b.
func (g *Graph) OperationsOf(b BlockIndex) OpRange {
	return g.Block(b).Ops()
}

// Terminator returns the last operation of b, or InvalidOp if b is empty.
func (g *Graph) Terminator(b BlockIndex) OpIndex {
	return g.OperationsOf(b).Last()
}

// Successors returns the successors of b in exploration order.
func (g *Graph) Successors(b BlockIndex) []BlockIndex {
	t := g.Terminator(b)
	if !t.Valid() {
		return nil
	}
	return g.Op(t).Successors()
}

// PredecessorCount returns the number of incoming edges of b.
func (g *Graph) PredecessorCount(b BlockIndex) int {
	return g.Block(b).npreds
}

// LastPredecessor returns the newest incoming edge of b, or NoEdge.
func (g *Graph) LastPredecessor(b BlockIndex) PredEdge {
	return g.Block(b).lastPred
}

// NextPredecessor returns the edge added to the same block before e.
func (g *Graph) NextPredecessor(e PredEdge) PredEdge {
	return g.edges[e].next
}

// EdgeSource returns the predecessor block of edge e.
func (g *Graph) EdgeSource(e PredEdge) BlockIndex {
	return g.edges[e].from
}

// Predecessors returns the predecessors of b in insertion order, which is
// also the order of every phi's inputs in b.
func (g *Graph) Predecessors(b BlockIndex) []BlockIndex {
	n := g.PredecessorCount(b)
	out := make([]BlockIndex, n)
	for e := g.LastPredecessor(b); e != NoEdge; e = g.NextPredecessor(e) {
		n--
		out[n] = g.EdgeSource(e)
	}
	return out
}

// ReorderBlocks renumbers blocks so that block perm[i] becomes block i.
// Operations are renumbered to keep every block's range contiguous in the
// new order, and all block and operation references are rewritten.
// perm must be a bijection over the existing blocks.
func (g *Graph) ReorderBlocks(perm []BlockIndex) {
	if g.bound.Valid() {
		panic("ir: reordering blocks while a block is bound")
	}
	if len(perm) != len(g.blocks) {
		panic(fmt.Sprintf("ir: permutation has %d entries for %d blocks", len(perm), len(g.blocks)))
	}
	newIndex := make([]BlockIndex, len(g.blocks))
	for i := range newIndex {
		newIndex[i] = InvalidBlock
	}
	for pos, old := range perm {
		if int(old) >= len(g.blocks) || newIndex[old].Valid() {
			panic(fmt.Sprintf("ir: permutation is not a bijection at position %d (%s)", pos, old))
		}
		newIndex[old] = nextBlockIndex(pos)
	}

	opMap := make([]OpIndex, len(g.ops))
	ops := make([]Operation, 0, len(g.ops))
	opBlock := make([]BlockIndex, 0, len(g.ops))
	blocks := make([]Block, len(g.blocks))
	for pos, old := range perm {
		blk := g.blocks[old]
		r := blk.Ops()
		if r.Len() > 0 {
			blk.begin = nextOpIndex(len(ops))
			for i := range r.All() {
				opMap[i] = nextOpIndex(len(ops))
				ops = append(ops, g.ops[i])
				opBlock = append(opBlock, BlockIndex(pos)) //nolint:gosec // G115: pos < block count
			}
			blk.end = nextOpIndex(len(ops))
		}
		blk.index = BlockIndex(pos) //nolint:gosec // G115: pos < block count
		blocks[pos] = blk
	}

	for i := range ops {
		op := &ops[i]
		if len(op.Inputs) > 0 {
			inputs := make([]OpIndex, len(op.Inputs))
			for j, in := range op.Inputs {
				inputs[j] = opMap[in]
			}
			op.Inputs = inputs
		}
		switch op.Kind {
		case OpGoto:
			op.Goto.Target = newIndex[op.Goto.Target]
		case OpBranch:
			op.Branch.True = newIndex[op.Branch.True]
			op.Branch.False = newIndex[op.Branch.False]
		}
	}
	for i := range g.edges {
		g.edges[i].from = newIndex[g.edges[i].from]
	}

	g.ops = ops
	g.opBlock = opBlock
	g.blocks = blocks
}
