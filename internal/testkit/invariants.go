package testkit

import (
	"fmt"
	"slices"

	"cfgprep/internal/ir"
)

// CheckPermutation verifies that order is a bijection over [0, n).
func CheckPermutation(order []ir.BlockIndex, n int) error {
	if len(order) != n {
		return fmt.Errorf("order has %d entries, want %d", len(order), n)
	}
	seen := make([]bool, n)
	for pos, b := range order {
		if int(b) >= n {
			return fmt.Errorf("position %d: block %s out of range", pos, b)
		}
		if seen[b] {
			return fmt.Errorf("position %d: block %s appears twice", pos, b)
		}
		seen[b] = true
	}
	return nil
}

// CheckContiguous verifies that members occupy one contiguous range of
// order and that header is the first block of that range.
func CheckContiguous(order []ir.BlockIndex, header ir.BlockIndex, members []ir.BlockIndex) error {
	pos := positions(order)
	lo, hi := len(order), -1
	for _, m := range members {
		lo = min(lo, pos[m])
		hi = max(hi, pos[m])
	}
	if hi-lo+1 != len(members) {
		return fmt.Errorf("loop %s: %d members spread over positions [%d,%d]", header, len(members), lo, hi)
	}
	if pos[header] != lo {
		return fmt.Errorf("loop %s: header at position %d, range starts at %d", header, pos[header], lo)
	}
	return nil
}

// CheckForwardEdges verifies that every edge of g goes forward in order,
// except edges into the blocks listed in headers.
func CheckForwardEdges(g *ir.Graph, order []ir.BlockIndex, headers []ir.BlockIndex) error {
	pos := positions(order)
	for i := 0; i < g.BlockCount(); i++ {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		for _, s := range g.Successors(b) {
			if pos[s] > pos[b] || slices.Contains(headers, s) {
				continue
			}
			return fmt.Errorf("edge %s -> %s goes backward in %v", b, s, order)
		}
	}
	return nil
}

// CheckLivenessClosure verifies that every input of a live operation is
// live itself.
func CheckLivenessClosure(g *ir.Graph, live func(ir.OpIndex) bool) error {
	for i := 0; i < g.OpCount(); i++ {
		idx := ir.OpIndex(i) //nolint:gosec // G115: bounded by op count
		if !live(idx) {
			continue
		}
		for _, in := range g.Op(idx).Inputs {
			if !live(in) {
				return fmt.Errorf("%s is live but its input %s is dead", idx, in)
			}
		}
	}
	return nil
}

// ReversePostorder is the textbook recursive reverse postorder of g from
// its entry, exploring successors in terminator order.
func ReversePostorder(g *ir.Graph) []ir.BlockIndex {
	seen := make([]bool, g.BlockCount())
	var post []ir.BlockIndex
	var visit func(b ir.BlockIndex)
	visit = func(b ir.BlockIndex) {
		seen[b] = true
		for _, s := range g.Successors(b) {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(g.Entry())
	slices.Reverse(post)
	return post
}

func positions(order []ir.BlockIndex) map[ir.BlockIndex]int {
	pos := make(map[ir.BlockIndex]int, len(order))
	for i, b := range order {
		pos[b] = i
	}
	return pos
}
