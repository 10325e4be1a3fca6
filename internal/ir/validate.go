package ir

import (
	"errors"
	"fmt"
)

// Validate checks the graph invariants the passes rely on.
// Returns the joined list of violations, or nil.
func Validate(g *Graph) error {
	if g == nil {
		return nil
	}
	if g.BlockCount() == 0 {
		return fmt.Errorf("graph %q has no blocks", g.Name)
	}

	var errs []error

	// 1. Every block is non-empty and ends in its only terminator
	if err := validateTerminators(g); err != nil {
		errs = append(errs, err)
	}

	// 2. Block and operation references are in range
	if err := validateReferences(g); err != nil {
		errs = append(errs, err)
	}

	// 3. Entry/predecessor shape
	if err := validatePredecessors(g); err != nil {
		errs = append(errs, err)
	}

	// 4. Phi arity
	if err := validatePhis(g); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateTerminators(g *Graph) error {
	var errs []error
	for b := range g.blocks {
		r := g.blocks[b].Ops()
		if r.Len() == 0 {
			errs = append(errs, fmt.Errorf("b%d: empty block", b))
			continue
		}
		for i := range r.All() {
			op := g.Op(i)
			if op.IsTerminator() && i != r.Last() {
				errs = append(errs, fmt.Errorf("b%d: terminator %s is not the last operation", b, i))
			}
		}
		if !g.Op(r.Last()).IsTerminator() {
			errs = append(errs, fmt.Errorf("b%d: unterminated block", b))
		}
	}
	return errors.Join(errs...)
}

func validateReferences(g *Graph) error {
	var errs []error

	blockExists := func(b BlockIndex) bool {
		return int(b) < len(g.blocks)
	}

	for i := range g.ops {
		op := &g.ops[i]
		for j, in := range op.Inputs {
			if int(in) >= len(g.ops) {
				errs = append(errs, fmt.Errorf("v%d: input %d (%s) does not exist", i, j, in))
			}
		}
		switch op.Kind {
		case OpGoto:
			if !blockExists(op.Goto.Target) {
				errs = append(errs, fmt.Errorf("v%d: goto target %s does not exist", i, op.Goto.Target))
			}
		case OpBranch:
			if len(op.Inputs) != 1 {
				errs = append(errs, fmt.Errorf("v%d: branch needs exactly one condition, has %d", i, len(op.Inputs)))
			}
			if !blockExists(op.Branch.True) {
				errs = append(errs, fmt.Errorf("v%d: branch true target %s does not exist", i, op.Branch.True))
			}
			if !blockExists(op.Branch.False) {
				errs = append(errs, fmt.Errorf("v%d: branch false target %s does not exist", i, op.Branch.False))
			}
		}
	}
	return errors.Join(errs...)
}

func validatePredecessors(g *Graph) error {
	var errs []error
	for b := range g.blocks {
		blk := &g.blocks[b]
		n := blk.npreds
		switch {
		case b == 0:
			if blk.Kind != BlockEntry {
				errs = append(errs, fmt.Errorf("b0: entry block has kind %s", blk.Kind))
			}
			if n != 0 {
				errs = append(errs, fmt.Errorf("b0: entry block has %d predecessors", n))
			}
		case blk.Kind == BlockEntry:
			errs = append(errs, fmt.Errorf("b%d: only block 0 may be an entry block", b))
		case n == 0:
			errs = append(errs, fmt.Errorf("b%d: block has no predecessors", b))
		case blk.Kind == BlockPlain && n != 1:
			errs = append(errs, fmt.Errorf("b%d: plain block has %d predecessors", b, n))
		}
	}
	return errors.Join(errs...)
}

func validatePhis(g *Graph) error {
	var errs []error
	for b := range g.blocks {
		blk := &g.blocks[b]
		for i := range blk.Ops().All() {
			op := g.Op(i)
			if op.Kind != OpPhi {
				continue
			}
			if !blk.IsLoopOrMerge() {
				errs = append(errs, fmt.Errorf("b%d: phi %s in %s block", b, i, blk.Kind))
				continue
			}
			if len(op.Inputs) != blk.npreds {
				errs = append(errs, fmt.Errorf("b%d: phi %s has %d inputs for %d predecessors",
					b, i, len(op.Inputs), blk.npreds))
			}
		}
	}
	return errors.Join(errs...)
}
