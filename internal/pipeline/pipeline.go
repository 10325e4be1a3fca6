// Package pipeline runs the preparation stages over one graph: validation,
// special reverse postorder, deferred-block propagation and dead code
// elimination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cfgprep/internal/config"
	"cfgprep/internal/copier"
	"cfgprep/internal/dce"
	"cfgprep/internal/ir"
	"cfgprep/internal/observ"
	"cfgprep/internal/rpo"
	"cfgprep/internal/trace"
)

// ErrInvalidGraph wraps every structural problem found by the verify stage.
var ErrInvalidGraph = errors.New("invalid graph")

// Options configure one Run.
type Options struct {
	Pipeline config.Pipeline
	// File labels progress events.
	File     string
	Progress ProgressSink
	// Timer, when set, accumulates stage durations across runs.
	Timer *observ.Timer
}

// Result is what Run produces for one graph.
type Result struct {
	// Graph is the output graph. It is the input graph itself when dead code
	// elimination is disabled.
	Graph *ir.Graph
	// Order is the special reverse postorder in input block numbering, or
	// nil when ordering is disabled.
	Order []ir.BlockIndex
	// Loops are reported in input block numbering.
	Loops   []Loop
	Stats   Stats
	Timings Timings
}

// Loop summarizes one loop found while ordering.
type Loop struct {
	Header  ir.BlockIndex
	Members []ir.BlockIndex
	// Parent indexes the innermost enclosing loop in Result.Loops, or -1.
	Parent int
	Depth  int
}

type runner struct {
	ctx    context.Context
	opts   Options
	tracer trace.Tracer
	parent uint64
	res    *Result
}

// Run applies the configured stages to g. Run takes ownership of g: ordering
// renumbers its blocks in place.
//
// With ordering disabled g must already be in special reverse postorder, as
// for a graph previously written by Run.
func Run(ctx context.Context, g *ir.Graph, opts Options) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}
	r := &runner{
		ctx:    ctx,
		opts:   opts,
		tracer: trace.FromContext(ctx),
		parent: trace.CurrentSpan(ctx).SpanID,
		res:    &Result{Graph: g},
	}
	cfg := opts.Pipeline
	r.res.Stats.Blocks = g.BlockCount()
	r.res.Stats.OpsIn = g.OpCount()

	if cfg.Verify {
		ordered := !cfg.SpecialRPO && (cfg.PropagateDeferred || cfg.EliminateDeadCode)
		if err := r.stage(StageVerify, func(uint64) (string, error) { return "", verify(g, ordered) }); err != nil {
			return nil, err
		}
	}
	if cfg.SpecialRPO {
		if err := r.stage(StageOrder, func(uint64) (string, error) { return r.order(g), nil }); err != nil {
			return nil, err
		}
	}
	if cfg.PropagateDeferred {
		err := r.stage(StageDeferred, func(uint64) (string, error) {
			rpo.PropagateDeferred(g)
			return strconv.Itoa(countDeferred(g)) + " deferred", nil
		})
		if err != nil {
			return nil, err
		}
	}
	if cfg.EliminateDeadCode {
		var analysis *dce.Result
		err := r.stage(StageAnalyze, func(span uint64) (string, error) {
			analysis = dce.Analyze(g, dce.Options{Tracer: r.tracer, ParentSpan: span})
			return fmt.Sprintf("%d/%d live, %d visits", analysis.LiveCount(), g.OpCount(), analysis.Visits), nil
		})
		if err != nil {
			return nil, err
		}
		err = r.stage(StageReduce, func(uint64) (string, error) {
			reducers := []copier.Reducer{dce.NewReducer(analysis)}
			if cfg.ForwardPhis {
				reducers = append(reducers, dce.PhiForwardingReducer{})
			}
			r.res.Graph = copier.Copy(g, reducers...)
			r.res.Stats.Leaf = analysis.IsLeafFunction
			r.res.Stats.BranchesRewritten = countRewrittenBranches(g, analysis)
			return fmt.Sprintf("%d ops, %d blocks", r.res.Graph.OpCount(), r.res.Graph.BlockCount()), nil
		})
		if err != nil {
			return nil, err
		}
		if cfg.Verify {
			if err := verify(r.res.Graph, true); err != nil {
				return nil, fmt.Errorf("reduced graph: %w", err)
			}
		}
	}

	out := r.res.Graph
	r.res.Stats.BlocksOut = out.BlockCount()
	r.res.Stats.OpsOut = out.OpCount()
	r.res.Stats.OpsRemoved = r.res.Stats.OpsIn - out.OpCount()
	r.res.Stats.Deferred = countDeferred(out)
	return r.res, nil
}

// stage runs fn between progress events, inside a pass span, and records its
// duration.
func (r *runner) stage(stage Stage, fn func(span uint64) (string, error)) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	Emit(r.opts.Progress, r.opts.File, stage, StatusWorking, nil, 0)
	span := trace.Begin(r.tracer, trace.ScopePass, string(stage), r.parent)
	start := time.Now()
	note, err := fn(span.ID())
	elapsed := time.Since(start)
	if err != nil {
		note = err.Error()
	}
	span.End(note)
	r.res.Timings = append(r.res.Timings, StageTime{Stage: stage, Elapsed: elapsed})
	r.opts.Timer.Add(string(stage), elapsed)
	if err != nil {
		Emit(r.opts.Progress, r.opts.File, stage, StatusError, err, elapsed)
		return err
	}
	Emit(r.opts.Progress, r.opts.File, stage, StatusDone, nil, elapsed)
	return nil
}

func (r *runner) order(g *ir.Graph) string {
	nb := rpo.NewNumberer(g)
	order := nb.Compute()
	r.res.Order = order
	r.res.Loops = summarizeLoops(nb)
	r.res.Stats.Loops = len(r.res.Loops)
	for _, l := range r.res.Loops {
		r.res.Stats.MaxLoopDepth = max(r.res.Stats.MaxLoopDepth, l.Depth)
	}
	g.ReorderBlocks(order)
	return strconv.Itoa(len(r.res.Loops)) + " loops"
}

func summarizeLoops(nb *rpo.Numberer) []Loop {
	infos := nb.Loops()
	if len(infos) == 0 {
		return nil
	}
	depths := nb.LoopDepths()
	loops := make([]Loop, len(infos))
	for i := range infos {
		members := infos[i].Members.Contents()
		out := make([]ir.BlockIndex, len(members))
		copy(out, members)
		loops[i] = Loop{
			Header:  infos[i].Header,
			Members: out,
			Parent:  nb.Parent(i),
			Depth:   depths[infos[i].Header],
		}
	}
	return loops
}

func countDeferred(g *ir.Graph) int {
	n := 0
	for b := range g.BlockCount() {
		if g.Block(ir.BlockIndex(b)).Deferred { //nolint:gosec // G115: bounded by block count
			n++
		}
	}
	return n
}

func countRewrittenBranches(g *ir.Graph, res *dce.Result) int {
	n := 0
	for _, e := range res.Rewrites.Contents() {
		if g.Op(e.Key).Kind == ir.OpBranch {
			n++
		}
	}
	return n
}
