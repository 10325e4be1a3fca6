// Package rpo computes block linearizations for the backend.
//
// ComputeSpecialRPO returns a reverse postorder in which the blocks of every
// loop are contiguous, header first, and nested loops are contiguous within
// their parent. PropagateDeferred marks cold blocks over such an order.
package rpo

import (
	"fmt"

	"cfgprep/internal/ir"
	"cfgprep/internal/sparse"
)

type rpoState uint8

const (
	stateUnvisited rpoState = iota
	stateOnStack
	stateVisited1
	stateVisited2
)

// In the second pass blocks finished by the first pass count as unvisited.
const stateUnvisited2 = stateVisited1

const noLoop = -1

// LoopInfo describes one natural loop found by the numberer.
type LoopInfo struct {
	Header  ir.BlockIndex
	Members *sparse.Set[ir.BlockIndex]

	// outgoing holds successors that leave the loop; they are visited once
	// the loop body has been laid out.
	outgoing []ir.BlockIndex
	// prev is the enclosing open loop while this loop is on the loop stack.
	prev  int
	start ir.BlockIndex
	end   ir.BlockIndex
}

// Contains reports whether b belongs to the loop (the header included).
func (l *LoopInfo) Contains(b ir.BlockIndex) bool {
	return l.Members.Contains(b)
}

type stackFrame struct {
	block ir.BlockIndex
	index int
	succs []ir.BlockIndex
}

// Backedge is an edge whose target was on the DFS stack when the edge was
// followed. Its target is a loop header.
type Backedge struct {
	From   ir.BlockIndex
	Header ir.BlockIndex
}

// Numberer computes a special reverse postorder for one graph. It owns all
// per-block scratch state and is discarded after use.
type Numberer struct {
	g *ir.Graph

	state   []rpoState
	loopNum []int
	next    []ir.BlockIndex

	stack     []stackFrame
	backedges []Backedge
	loops     []LoopInfo
}

// NewNumberer prepares a numberer for g.
func NewNumberer(g *ir.Graph) *Numberer {
	n := g.BlockCount()
	nb := &Numberer{
		g:       g,
		state:   make([]rpoState, n),
		loopNum: make([]int, n),
		next:    make([]ir.BlockIndex, n),
		stack:   make([]stackFrame, 0, n),
	}
	for i := range nb.loopNum {
		nb.loopNum[i] = noLoop
		nb.next[i] = ir.InvalidBlock
	}
	return nb
}

// ComputeSpecialRPO returns the special reverse postorder of g as a
// permutation suitable for Graph.ReorderBlocks.
func ComputeSpecialRPO(g *ir.Graph) []ir.BlockIndex {
	return NewNumberer(g).Compute()
}

// FindBackedges runs only the discovery DFS over g and returns its
// backedges in the order they were found.
func FindBackedges(g *ir.Graph) []Backedge {
	nb := NewNumberer(g)
	if !g.Entry().Valid() {
		return nil
	}
	nb.discover(g.Entry())
	return nb.backedges
}

// Loops returns the loops detected by Compute, indexed by loop number.
func (nb *Numberer) Loops() []LoopInfo {
	return nb.loops
}

// LoopOf returns the loop number of header b, or -1 if b is not a header.
func (nb *Numberer) LoopOf(b ir.BlockIndex) int {
	return nb.loopNum[b]
}

func (nb *Numberer) push(b ir.BlockIndex, unvisited rpoState) {
	if nb.state[b] != unvisited {
		return
	}
	nb.stack = append(nb.stack, stackFrame{block: b, succs: nb.g.Successors(b)})
	nb.state[b] = stateOnStack
}

func (nb *Numberer) pushFront(head, b ir.BlockIndex) ir.BlockIndex {
	nb.next[b] = head
	return b
}

// Compute runs both passes and returns the order.
func (nb *Numberer) Compute() []ir.BlockIndex {
	entry := nb.g.Entry()
	if !entry.Valid() {
		return nil
	}

	order, numLoops := nb.discover(entry)
	if numLoops > 0 {
		nb.computeLoopInfo(numLoops)
		order = nb.layoutLoops(entry)
	}

	return nb.linearize(order)
}

// discover is pass 1: a plain DFS from entry that records backedges and
// numbers loop headers. It returns the head of the emerging order and the
// number of loops.
func (nb *Numberer) discover(entry ir.BlockIndex) (ir.BlockIndex, int) {
	order := ir.InvalidBlock
	numLoops := 0
	nb.push(entry, stateUnvisited)
	for len(nb.stack) > 0 {
		frame := &nb.stack[len(nb.stack)-1]
		if frame.index < len(frame.succs) {
			succ := frame.succs[frame.index]
			frame.index++
			switch nb.state[succ] {
			case stateVisited1:
			case stateOnStack:
				nb.backedges = append(nb.backedges, Backedge{From: frame.block, Header: succ})
				if nb.loopNum[succ] == noLoop {
					nb.loopNum[succ] = numLoops
					numLoops++
				}
			default:
				nb.push(succ, stateUnvisited)
			}
			continue
		}
		order = nb.pushFront(order, frame.block)
		nb.state[frame.block] = stateVisited1
		nb.stack = nb.stack[:len(nb.stack)-1]
	}
	return order, numLoops
}

// computeLoopInfo builds the member set of every loop by flooding backward
// from each backedge source up to the header.
func (nb *Numberer) computeLoopInfo(numLoops int) {
	n := nb.g.BlockCount()
	nb.loops = make([]LoopInfo, numLoops)
	for i := range nb.loops {
		nb.loops[i].prev = noLoop
		nb.loops[i].start = ir.InvalidBlock
		nb.loops[i].end = ir.InvalidBlock
	}

	queue := make([]ir.BlockIndex, 0, n)
	for _, be := range nb.backedges {
		loop := &nb.loops[nb.loopNum[be.Header]]
		if loop.Members == nil {
			loop.Header = be.Header
			loop.Members = sparse.NewSet[ir.BlockIndex](n)
			loop.Members.Add(be.Header)
		}
		if be.From == be.Header {
			continue
		}
		if loop.Members.Add(be.From) {
			queue = append(queue, be.From)
		}
		for len(queue) > 0 {
			b := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			for e := nb.g.LastPredecessor(b); e != ir.NoEdge; e = nb.g.NextPredecessor(e) {
				pred := nb.g.EdgeSource(e)
				if pred == be.Header {
					continue
				}
				if loop.Members.Add(pred) {
					queue = append(queue, pred)
				}
			}
		}
	}
}

// layoutLoops is the second DFS. Successors leaving the innermost open loop
// are parked on that loop's outgoing list and visited only after the loop
// body has been emitted, which keeps every loop contiguous.
func (nb *Numberer) layoutLoops(entry ir.BlockIndex) ir.BlockIndex {
	order := ir.InvalidBlock
	loop := noLoop

	nb.push(entry, stateUnvisited2)
	for len(nb.stack) > 0 {
		frame := &nb.stack[len(nb.stack)-1]
		block := frame.block
		succ := ir.InvalidBlock

		if frame.index < len(frame.succs) {
			succ = frame.succs[frame.index]
			frame.index++
		} else if ln := nb.loopNum[block]; ln != noLoop {
			info := &nb.loops[ln]
			if nb.state[block] == stateOnStack {
				// The body is done the first time the header runs out of
				// successors: close the loop and continue in the parent.
				if loop != ln {
					panic(fmt.Sprintf("rpo: loop stack corrupted at header %s", block))
				}
				info.start = nb.pushFront(order, block)
				order = info.end
				nb.state[block] = stateVisited2
				loop = info.prev
			}
			outgoing := frame.index - len(frame.succs)
			if outgoing < len(info.outgoing) {
				succ = info.outgoing[outgoing]
				frame.index++
			}
		}

		if succ.Valid() {
			switch nb.state[succ] {
			case stateOnStack, stateVisited2:
				continue
			}
			if loop != noLoop && !nb.loops[loop].Contains(succ) {
				nb.loops[loop].outgoing = append(nb.loops[loop].outgoing, succ)
				continue
			}
			nb.push(succ, stateUnvisited2)
			if ln := nb.loopNum[succ]; ln != noLoop {
				inner := &nb.loops[ln]
				inner.end = order
				inner.prev = loop
				loop = ln
			}
			continue
		}

		if ln := nb.loopNum[block]; ln != noLoop {
			// Splice the finished body in front of the blocks reached
			// through the loop's outgoing edges.
			info := &nb.loops[ln]
			for b := info.start; ; b = nb.next[b] {
				if nb.next[b] == info.end {
					nb.next[b] = order
					info.end = order
					break
				}
			}
			order = info.start
		} else {
			order = nb.pushFront(order, block)
			nb.state[block] = stateVisited2
		}
		nb.stack = nb.stack[:len(nb.stack)-1]
	}
	return order
}

func (nb *Numberer) linearize(head ir.BlockIndex) []ir.BlockIndex {
	n := nb.g.BlockCount()
	out := make([]ir.BlockIndex, 0, n)
	for b := head; b.Valid(); b = nb.next[b] {
		if len(out) == n {
			panic("rpo: cycle in emerging order")
		}
		out = append(out, b)
	}
	if len(out) != n {
		panic(fmt.Sprintf("rpo: order covers %d of %d blocks; graph has unreachable blocks", len(out), n))
	}
	return out
}

// LoopDepths returns, for every block of the original graph, the number of
// detected loops containing it.
func (nb *Numberer) LoopDepths() []int {
	depth := make([]int, nb.g.BlockCount())
	for i := range nb.loops {
		for _, b := range nb.loops[i].Members.Contents() {
			depth[b]++
		}
	}
	return depth
}

// Parent returns the loop number of the innermost loop strictly enclosing
// loop l, or -1.
func (nb *Numberer) Parent(l int) int {
	best := noLoop
	header := nb.loops[l].Header
	for i := range nb.loops {
		if i == l || !nb.loops[i].Contains(header) {
			continue
		}
		if best == noLoop || nb.loops[i].Members.Len() < nb.loops[best].Members.Len() {
			best = i
		}
	}
	return best
}
