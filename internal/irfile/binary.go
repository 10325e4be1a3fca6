package irfile

import (
	"errors"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"cfgprep/internal/ir"
)

// Bump when binaryGraph changes shape.
const binarySchemaVersion uint16 = 1

// ErrSchemaMismatch is returned for binary files written by another version.
var ErrSchemaMismatch = errors.New("graph schema mismatch")

type binaryGraph struct {
	Schema uint16
	Name   string
	Blocks []binaryBlock
}

type binaryBlock struct {
	Kind     uint8
	Deferred bool
	Ops      []binaryOp
}

// binaryOp flattens ir.Operation. Targets holds goto/branch targets, Text
// the mnemonic or callee, Attr the hint or representation.
type binaryOp struct {
	Kind     uint8
	Inputs   []uint32
	Targets  []uint32
	Text     string
	Attr     uint8
	Required bool
}

// EncodeBinary writes g in the msgpack form.
func EncodeBinary(w io.Writer, g *ir.Graph) error {
	bg := binaryGraph{
		Schema: binarySchemaVersion,
		Name:   g.Name,
		Blocks: make([]binaryBlock, g.BlockCount()),
	}
	for bi := range bg.Blocks {
		blk := g.Block(ir.BlockIndex(bi)) //nolint:gosec // G115: bounded by block count
		bb := binaryBlock{Kind: uint8(blk.Kind), Deferred: blk.Deferred}
		for i := range blk.Ops().All() {
			bb.Ops = append(bb.Ops, encodeBinaryOp(g.Op(i)))
		}
		bg.Blocks[bi] = bb
	}
	if err := msgpack.NewEncoder(w).Encode(&bg); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

func encodeBinaryOp(op *ir.Operation) binaryOp {
	bo := binaryOp{Kind: uint8(op.Kind)}
	for _, in := range op.Inputs {
		bo.Inputs = append(bo.Inputs, uint32(in))
	}
	switch op.Kind {
	case ir.OpOther:
		bo.Text = op.Other.Mnemonic
		bo.Required = op.Other.RequiredWhenUnused
	case ir.OpGoto:
		bo.Targets = []uint32{uint32(op.Goto.Target)}
	case ir.OpBranch:
		bo.Targets = []uint32{uint32(op.Branch.True), uint32(op.Branch.False)}
		bo.Attr = uint8(op.Branch.Hint)
	case ir.OpPhi:
		bo.Attr = uint8(op.Phi.Rep)
	case ir.OpCall:
		bo.Text = op.Call.Callee
	}
	return bo
}

// DecodeBinary reads the msgpack form. Index fields are range-checked so
// that a corrupt file yields an error instead of a broken graph.
func DecodeBinary(r io.Reader) (*ir.Graph, error) {
	var bg binaryGraph
	if err := msgpack.NewDecoder(r).Decode(&bg); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	if bg.Schema != binarySchemaVersion {
		return nil, fmt.Errorf("%w: file has %d, want %d", ErrSchemaMismatch, bg.Schema, binarySchemaVersion)
	}
	if len(bg.Blocks) == 0 {
		return nil, errors.New("graph has no blocks")
	}

	nblocks, err := safecast.Conv[uint32](len(bg.Blocks))
	if err != nil {
		return nil, fmt.Errorf("block count overflow: %w", err)
	}
	total := 0
	for _, bb := range bg.Blocks {
		total += len(bb.Ops)
	}
	nops, err := safecast.Conv[uint32](total)
	if err != nil {
		return nil, fmt.Errorf("operation count overflow: %w", err)
	}

	g := ir.NewGraph(bg.Name)
	for bi, bb := range bg.Blocks {
		if bb.Kind > uint8(ir.BlockLoop) {
			return nil, fmt.Errorf("block %d: invalid kind %d", bi, bb.Kind)
		}
		b := g.AddBlock(ir.BlockKind(bb.Kind))
		g.Block(b).Deferred = bb.Deferred
	}
	for bi, bb := range bg.Blocks {
		if len(bb.Ops) == 0 {
			return nil, fmt.Errorf("block %d: no operations", bi)
		}
		g.Bind(ir.BlockIndex(bi)) //nolint:gosec // G115: bounded by nblocks
		for oi := range bb.Ops {
			op, err := decodeBinaryOp(&bb.Ops[oi], nblocks, nops)
			if err != nil {
				return nil, fmt.Errorf("block %d op %d: %w", bi, oi, err)
			}
			if op.IsTerminator() != (oi == len(bb.Ops)-1) {
				return nil, fmt.Errorf("block %d op %d: misplaced %s", bi, oi, op.Kind)
			}
			g.AddOperation(op)
		}
	}
	return g, nil
}

func decodeBinaryOp(bo *binaryOp, nblocks, nops uint32) (ir.Operation, error) {
	inputs := make([]ir.OpIndex, len(bo.Inputs))
	for i, in := range bo.Inputs {
		if in >= nops {
			return ir.Operation{}, fmt.Errorf("input %d out of range", in)
		}
		inputs[i] = ir.OpIndex(in)
	}
	if len(inputs) == 0 {
		inputs = nil
	}
	targets := make([]ir.BlockIndex, len(bo.Targets))
	for i, t := range bo.Targets {
		if t >= nblocks {
			return ir.Operation{}, fmt.Errorf("target %d out of range", t)
		}
		targets[i] = ir.BlockIndex(t)
	}

	switch ir.Opcode(bo.Kind) {
	case ir.OpOther:
		op := ir.Pure(bo.Text, inputs...)
		op.Other.RequiredWhenUnused = bo.Required
		return op, nil
	case ir.OpGoto:
		if len(targets) != 1 {
			return ir.Operation{}, fmt.Errorf("goto with %d targets", len(targets))
		}
		return ir.Goto(targets[0]), nil
	case ir.OpBranch:
		if len(targets) != 2 || len(inputs) != 1 || bo.Attr > uint8(ir.HintFalse) {
			return ir.Operation{}, errors.New("malformed branch")
		}
		return ir.Branch(inputs[0], targets[0], targets[1], ir.BranchHint(bo.Attr)), nil
	case ir.OpPhi:
		if bo.Attr > uint8(ir.RepTagged) {
			return ir.Operation{}, fmt.Errorf("invalid representation %d", bo.Attr)
		}
		return ir.Phi(ir.Representation(bo.Attr), inputs...), nil
	case ir.OpCall:
		return ir.Call(bo.Text, inputs...), nil
	case ir.OpReturn:
		return ir.Return(inputs...), nil
	case ir.OpDead:
		return ir.Dead(), nil
	default:
		return ir.Operation{}, fmt.Errorf("invalid opcode %d", bo.Kind)
	}
}
