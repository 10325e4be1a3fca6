package dce

import (
	"fmt"

	"cfgprep/internal/ir"
)

// Liveness is the state of one operation: Dead < Live.
type Liveness uint8

const (
	Dead Liveness = iota
	Live
)

func (l Liveness) String() string {
	if l == Live {
		return "live"
	}
	return "dead"
}

type controlKind uint8

const (
	kindUnreachable controlKind = iota
	kindBlock
	kindNotEliminatable
)

// ControlState is what the analysis knows about where control goes once it
// enters a block. It is a three-level lattice: Unreachable at the bottom,
// Block(b) for "the block only forwards control to b", and NotEliminatable
// at the top.
type ControlState struct {
	kind  controlKind
	block ir.BlockIndex
}

// Unreachable is the bottom of the lattice.
func Unreachable() ControlState { return ControlState{kind: kindUnreachable, block: ir.InvalidBlock} }

// BlockState says that control entering the block can be sent to b directly.
func BlockState(b ir.BlockIndex) ControlState { return ControlState{kind: kindBlock, block: b} }

// NotEliminatable is the top of the lattice.
func NotEliminatable() ControlState {
	return ControlState{kind: kindNotEliminatable, block: ir.InvalidBlock}
}

// Join returns the least upper bound of s and o.
func (s ControlState) Join(o ControlState) ControlState {
	switch {
	case s.kind == kindUnreachable:
		return o
	case o.kind == kindUnreachable:
		return s
	case s.kind == kindBlock && o.kind == kindBlock && s.block == o.block:
		return s
	default:
		return NotEliminatable()
	}
}

// IsUnreachable reports whether s is the bottom element.
func (s ControlState) IsUnreachable() bool { return s.kind == kindUnreachable }

// IsNotEliminatable reports whether s is the top element.
func (s ControlState) IsNotEliminatable() bool { return s.kind == kindNotEliminatable }

// Target returns b for Block(b).
func (s ControlState) Target() (ir.BlockIndex, bool) {
	if s.kind != kindBlock {
		return ir.InvalidBlock, false
	}
	return s.block, true
}

func (s ControlState) String() string {
	switch s.kind {
	case kindUnreachable:
		return "unreachable"
	case kindBlock:
		return fmt.Sprintf("block(%s)", s.block)
	default:
		return "not-eliminatable"
	}
}
