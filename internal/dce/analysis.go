// Package dce removes operations whose results are never used and folds
// branches whose every successor leads to the same block.
//
// Analyze runs a backward liveness and control-reachability analysis over a
// graph in special reverse postorder. Reducer then drops what the analysis
// found dead while the graph is copied.
package dce

import (
	"fmt"

	"cfgprep/internal/ir"
	"cfgprep/internal/sparse"
	"cfgprep/internal/trace"
)

// Options configure one analysis run.
type Options struct {
	// Tracer receives one block-scope event per processed block when its
	// level admits that scope. Nil disables tracing.
	Tracer trace.Tracer
	// ParentSpan is the span the block events are attached to.
	ParentSpan uint64
}

// Result is the outcome of the analysis. It is read-only once returned.
type Result struct {
	Liveness []Liveness
	// Rewrites maps a dead Branch or Goto to the block it can jump to
	// directly.
	Rewrites       *sparse.Map[ir.OpIndex, ir.BlockIndex]
	IsLeafFunction bool
	// EntryControl is the control state recorded for each block.
	EntryControl []ControlState
	// Visits counts processed blocks, re-walked loop bodies included.
	Visits int
}

// IsLive reports whether operation i survives.
func (r *Result) IsLive(i ir.OpIndex) bool {
	return r.Liveness[i] == Live
}

// LiveCount returns the number of live operations.
func (r *Result) LiveCount() int {
	n := 0
	for _, l := range r.Liveness {
		if l == Live {
			n++
		}
	}
	return n
}

// Analysis holds the scratch state of one run.
type Analysis struct {
	g    *ir.Graph
	opts Options

	liveness []Liveness
	entry    []ControlState
	rewrites *sparse.Map[ir.OpIndex, ir.BlockIndex]
	leaf     bool
	visits   int

	traceBlocks bool
}

// Analyze runs the analysis over g, which must be in special reverse
// postorder.
func Analyze(g *ir.Graph, opts Options) *Result {
	return NewAnalysis(g, opts).Run()
}

// NewAnalysis prepares an analysis of g.
func NewAnalysis(g *ir.Graph, opts Options) *Analysis {
	a := &Analysis{
		g:        g,
		opts:     opts,
		liveness: make([]Liveness, g.OpCount()),
		entry:    make([]ControlState, g.BlockCount()),
		rewrites: sparse.NewMap[ir.OpIndex, ir.BlockIndex](g.OpCount()),
		leaf:     true,
	}
	for i := range a.entry {
		a.entry[i] = Unreachable()
	}
	t := opts.Tracer
	a.traceBlocks = t != nil && t.Enabled() && t.Level().ShouldEmit(trace.ScopeBlock)
	return a
}

// Run walks the blocks from last to first. Processing a block may move the
// bound back up to re-walk a loop body; the walk ends once nothing changes.
func (a *Analysis) Run() *Result {
	unprocessed := a.g.BlockCount()
	for unprocessed > 0 {
		unprocessed--
		a.processBlock(ir.BlockIndex(unprocessed), &unprocessed) //nolint:gosec // G115: bounded by block count
	}
	return &Result{
		Liveness:       a.liveness,
		Rewrites:       a.rewrites,
		IsLeafFunction: a.leaf,
		EntryControl:   a.entry,
		Visits:         a.visits,
	}
}

func (a *Analysis) processBlock(b ir.BlockIndex, unprocessed *int) {
	a.visits++
	blk := a.g.Block(b)

	control := Unreachable()
	for _, s := range a.g.Successors(b) {
		control = control.Join(a.entry[s])
	}

	hasLivePhis := false
	for i := range blk.Ops().Backward() {
		op := a.g.Op(i)
		state := a.liveness[i]

		switch op.Kind {
		case ir.OpDead:
			if state == Live {
				panic(fmt.Sprintf("dce: removed operation %s in %s is still used", i, b))
			}
			continue
		case ir.OpCall:
			a.leaf = false
		}

		switch {
		case op.Kind == ir.OpBranch || op.Kind == ir.OpGoto:
			if control.IsNotEliminatable() {
				state = Live
				a.rewrites.Remove(i)
			} else if target, ok := control.Target(); ok {
				a.rewrites.Set(i, target)
			}
		case op.IsRequiredWhenUnused():
			state = Live
		case op.Kind == ir.OpPhi:
			hasLivePhis = hasLivePhis || state == Live
		}

		if state != Live {
			continue
		}
		a.liveness[i] = Live
		control = NotEliminatable()
		for _, in := range op.Inputs {
			a.markLive(in, i, b, unprocessed)
		}
	}

	switch {
	case blk.IsLoop():
		control = NotEliminatable()
		if a.entry[b] != control {
			*unprocessed = max(*unprocessed, a.latestPredecessor(b)+1)
		}
	case blk.IsMerge() && !hasLivePhis:
		// A merge that only jumps on keeps its resolved target so callers
		// fold straight past it.
		if _, ok := control.Target(); !ok {
			control = BlockState(b)
		}
	}
	a.entry[b] = control

	if a.traceBlocks {
		trace.Point(a.opts.Tracer, trace.ScopeBlock, "block:"+b.String(), a.opts.ParentSpan, control.String())
	}
}

// markLive promotes input in of user (in block b) to live. If in was defined
// after user in the walk order, the walk is rewound so that its own inputs
// get promoted too; this is how a loop phi reaches its backedge value.
func (a *Analysis) markLive(in, user ir.OpIndex, b ir.BlockIndex, unprocessed *int) {
	if a.liveness[in] == Live {
		return
	}
	a.liveness[in] = Live
	def := a.g.BlockOf(in)
	if def > b || (def == b && in > user) {
		*unprocessed = max(*unprocessed, int(def)+1)
	}
}

func (a *Analysis) latestPredecessor(b ir.BlockIndex) int {
	latest := int(b)
	for e := a.g.LastPredecessor(b); e != ir.NoEdge; e = a.g.NextPredecessor(e) {
		latest = max(latest, int(a.g.EdgeSource(e)))
	}
	return latest
}
