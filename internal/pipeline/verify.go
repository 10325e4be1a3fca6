package pipeline

import (
	"errors"
	"fmt"

	"cfgprep/internal/ir"
	"cfgprep/internal/rpo"
)

// verify runs ir.Validate, checks that every block is reachable from the
// entry and that loop blocks are exactly the targets of backedges. With
// ordered set it also requires g to be numbered in reverse postorder: every
// edge that is not a backedge must run from a lower to a higher index.
func verify(g *ir.Graph, ordered bool) error {
	if err := ir.Validate(g); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	if err := checkReachable(g); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	backedges := rpo.FindBackedges(g)
	errs := []error{checkLoopKinds(g, backedges)}
	if ordered {
		errs = append(errs, checkOrdered(g, backedges))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	return nil
}

func checkReachable(g *ir.Graph) error {
	seen := make([]bool, g.BlockCount())
	stack := []ir.BlockIndex{g.Entry()}
	seen[g.Entry()] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Successors(b) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	var errs []error
	for b, ok := range seen {
		if !ok {
			errs = append(errs, fmt.Errorf("b%d: unreachable from entry", b))
		}
	}
	return errors.Join(errs...)
}

// checkLoopKinds requires BlockLoop on every backedge target and nowhere
// else.
func checkLoopKinds(g *ir.Graph, backedges []rpo.Backedge) error {
	latch := make([]ir.BlockIndex, g.BlockCount())
	for i := range latch {
		latch[i] = ir.InvalidBlock
	}
	for _, be := range backedges {
		if !latch[be.Header].Valid() {
			latch[be.Header] = be.From
		}
	}
	var errs []error
	for i := range latch {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		kind := g.Block(b).Kind
		switch {
		case latch[i].Valid() && kind != ir.BlockLoop:
			errs = append(errs, fmt.Errorf("%s: target of backedge from %s has kind %s, want loop", b, latch[i], kind))
		case !latch[i].Valid() && kind == ir.BlockLoop:
			errs = append(errs, fmt.Errorf("%s: loop block has no backedge", b))
		}
	}
	return errors.Join(errs...)
}

func checkOrdered(g *ir.Graph, backedges []rpo.Backedge) error {
	isBack := make(map[rpo.Backedge]bool, len(backedges))
	for _, be := range backedges {
		isBack[be] = true
	}
	var errs []error
	for i := range g.BlockCount() {
		b := ir.BlockIndex(i) //nolint:gosec // G115: bounded by block count
		for _, s := range g.Successors(b) {
			back := isBack[rpo.Backedge{From: b, Header: s}]
			if back != (s <= b) {
				errs = append(errs, fmt.Errorf("%s -> %s: graph is not in reverse postorder", b, s))
			}
		}
	}
	return errors.Join(errs...)
}
