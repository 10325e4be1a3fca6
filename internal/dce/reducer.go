package dce

import (
	"fmt"

	"cfgprep/internal/copier"
	"cfgprep/internal/ir"
)

// Reducer drops the operations an analysis found dead and turns resolved
// branches into gotos. Blocks that are no longer jumped to are not copied.
type Reducer struct {
	copier.Forward
	res *Result
}

// NewReducer returns a reducer applying res.
func NewReducer(res *Result) *Reducer {
	return &Reducer{res: res}
}

// ReduceOperation implements copier.Reducer.
func (r *Reducer) ReduceOperation(a *copier.Assembler, in ir.OpIndex, next copier.OpNext) ir.OpIndex {
	op := a.Input().Op(in)
	if op.Kind == ir.OpBranch || op.Kind == ir.OpGoto {
		if target, ok := r.res.Rewrites.Get(in); ok {
			return a.Emit(ir.Goto(a.MapBlock(target)))
		}
	}
	if r.res.Liveness[in] == Dead {
		if op.IsTerminator() {
			panic(fmt.Sprintf("dce: dead terminator %s in %s has no rewrite target", in, a.CurrentBlock()))
		}
		return ir.InvalidOp
	}
	return next(in)
}

// PhiForwardingReducer replaces a phi whose inputs are all the same value
// by that value. Loop phis are left alone.
type PhiForwardingReducer struct {
	copier.Forward
}

// ReduceOperation implements copier.Reducer.
func (PhiForwardingReducer) ReduceOperation(a *copier.Assembler, in ir.OpIndex, next copier.OpNext) ir.OpIndex {
	if a.Input().Op(in).Kind != ir.OpPhi {
		return next(in)
	}
	inputs, complete := a.PhiInputs(in)
	if !complete || len(inputs) == 0 || !inputs[0].Valid() {
		return next(in)
	}
	for _, v := range inputs[1:] {
		if v != inputs[0] {
			return next(in)
		}
	}
	return inputs[0]
}

// Eliminate analyzes g and returns the reduced copy together with the
// analysis result. g must be in special reverse postorder.
func Eliminate(g *ir.Graph, opts Options, extra ...copier.Reducer) (*ir.Graph, *Result) {
	res := Analyze(g, opts)
	reducers := append([]copier.Reducer{NewReducer(res)}, extra...)
	return copier.Copy(g, reducers...), res
}
