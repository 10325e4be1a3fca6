package rpo

import "cfgprep/internal/ir"

// PropagateDeferred marks blocks that are expected to run rarely. The graph
// must already be in special reverse postorder, so every forward predecessor
// of a block has a smaller index than the block itself.
//
// A block is deferred when its only predecessor is deferred or branches to
// it against the hint; a merge is deferred when all of its predecessors are;
// a loop header follows its forward predecessor.
func PropagateDeferred(g *ir.Graph) {
	for i := 0; i < g.BlockCount(); i++ {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		blk := g.Block(b)
		switch {
		case b == g.Entry():
			blk.Deferred = false
		case blk.IsLoop():
			blk.Deferred = forwardPredecessorDeferred(g, b)
		case g.PredecessorCount(b) == 1:
			pred := g.EdgeSource(g.LastPredecessor(b))
			blk.Deferred = g.Block(pred).Deferred || disfavoredBy(g, pred, b)
		default:
			blk.Deferred = allPredecessorsDeferred(g, b)
		}
	}
}

// disfavoredBy reports whether pred's terminator is a hinted branch whose
// preferred side is not b.
func disfavoredBy(g *ir.Graph, pred, b ir.BlockIndex) bool {
	op := g.Op(g.Terminator(pred))
	if op.Kind != ir.OpBranch || op.Branch.True == op.Branch.False {
		return false
	}
	switch op.Branch.Hint {
	case ir.HintTrue:
		return op.Branch.False == b
	case ir.HintFalse:
		return op.Branch.True == b
	default:
		return false
	}
}

func allPredecessorsDeferred(g *ir.Graph, b ir.BlockIndex) bool {
	for e := g.LastPredecessor(b); e != ir.NoEdge; e = g.NextPredecessor(e) {
		if !g.Block(g.EdgeSource(e)).Deferred {
			return false
		}
	}
	return true
}

func forwardPredecessorDeferred(g *ir.Graph, header ir.BlockIndex) bool {
	// The chain runs newest first; the entry-most forward edge wins.
	deferred := false
	for e := g.LastPredecessor(header); e != ir.NoEdge; e = g.NextPredecessor(e) {
		if pred := g.EdgeSource(e); pred < header {
			deferred = g.Block(pred).Deferred
		}
	}
	return deferred
}
