package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"cfgprep/internal/config"
	"cfgprep/internal/ir"
	"cfgprep/internal/observ"
	"cfgprep/internal/pipeline"
	"cfgprep/internal/testkit"
	"cfgprep/internal/trace"
)

func defaults() pipeline.Options {
	return pipeline.Options{Pipeline: config.Default().Pipeline, File: "g.cfg.toml"}
}

func TestRunFoldsDiamond(t *testing.T) {
	g := testkit.Shape("diamond", [][]int{{1, 2}, {3}, {3}, {}})

	res, err := pipeline.Run(context.Background(), g, defaults())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := pipeline.Stats{
		Blocks: 4, BlocksOut: 2,
		OpsIn: 5, OpsOut: 2, OpsRemoved: 3,
		BranchesRewritten: 1,
		Leaf:              true,
	}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
	if err := ir.Validate(res.Graph); err != nil {
		t.Fatalf("output invalid: %v", err)
	}
	if !slices.Equal(res.Order, []ir.BlockIndex{0, 2, 1, 3}) {
		t.Fatalf("order = %v", res.Order)
	}
	var ran []pipeline.Stage
	for _, st := range res.Timings {
		ran = append(ran, st.Stage)
	}
	if !slices.Equal(ran, pipeline.GraphStages) {
		t.Fatalf("stages ran = %v", ran)
	}
	if !strings.HasPrefix(res.Timings.String(), "verify ") || res.Timings.Total() < res.Timings.Duration(pipeline.StageAnalyze) {
		t.Fatalf("timings = %s", res.Timings)
	}
}

func TestRunReportsLoops(t *testing.T) {
	g := testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}, 1)

	res, err := pipeline.Run(context.Background(), g, defaults())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Loops) != 1 {
		t.Fatalf("loops = %+v", res.Loops)
	}
	l := res.Loops[0]
	slices.Sort(l.Members)
	if l.Header != 1 || l.Parent != -1 || l.Depth != 1 || !slices.Equal(l.Members, []ir.BlockIndex{1, 2}) {
		t.Fatalf("loop = %+v", l)
	}
	if res.Stats.Loops != 1 || res.Stats.MaxLoopDepth != 1 || res.Stats.BlocksOut != 4 {
		t.Fatalf("stats = %+v", res.Stats)
	}
}

func TestRunWithStagesDisabled(t *testing.T) {
	g := testkit.Shape("diamond", [][]int{{1, 2}, {3}, {3}, {}})

	res, err := pipeline.Run(context.Background(), g, pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Graph != g || res.Order != nil {
		t.Fatalf("expected the input graph back untouched")
	}
	for _, st := range pipeline.GraphStages {
		if res.Timings.Has(st) {
			t.Fatalf("stage %s recorded a timing", st)
		}
	}
	if res.Stats.OpsRemoved != 0 {
		t.Fatalf("stats = %+v", res.Stats)
	}
}

func TestRunRejectsUnreachableBlocks(t *testing.T) {
	g := testkit.Shape("island", [][]int{{}, {2}, {1}})

	_, err := pipeline.Run(context.Background(), g, defaults())
	if !errors.Is(err, pipeline.ErrInvalidGraph) {
		t.Fatalf("error = %v, want ErrInvalidGraph", err)
	}
	if !strings.Contains(err.Error(), "b1: unreachable from entry") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunRejectsMislabelledLoops(t *testing.T) {
	tests := []struct {
		name string
		g    *ir.Graph
		want string
	}{
		{
			name: "header labelled merge",
			g:    testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}),
			want: "b1: target of backedge from b2 has kind merge, want loop",
		},
		{
			name: "loop without backedge",
			g:    testkit.Shape("line", [][]int{{1}, {2}, {}}, 1),
			want: "b1: loop block has no backedge",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Run(context.Background(), tt.g, defaults())
			if !errors.Is(err, pipeline.ErrInvalidGraph) {
				t.Fatalf("error = %v, want ErrInvalidGraph", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRunWithoutOrderingRequiresOrderedInput(t *testing.T) {
	opts := defaults()
	opts.Pipeline.SpecialRPO = false

	_, err := pipeline.Run(context.Background(), testkit.Shape("rev", [][]int{{2}, {}, {1}}), opts)
	if !errors.Is(err, pipeline.ErrInvalidGraph) {
		t.Fatalf("error = %v, want ErrInvalidGraph", err)
	}
	if !strings.Contains(err.Error(), "b2 -> b1: graph is not in reverse postorder") {
		t.Fatalf("error = %v", err)
	}

	res, err := pipeline.Run(context.Background(), testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}, 1), opts)
	if err != nil {
		t.Fatalf("ordered loop: %v", err)
	}
	if res.Order != nil || res.Timings.Has(pipeline.StageOrder) {
		t.Fatalf("ordering ran with special_rpo off")
	}
	if err := ir.Validate(res.Graph); err != nil {
		t.Fatalf("output invalid: %v", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.Run(ctx, testkit.Shape("one", [][]int{{}}), defaults())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestRunProgressEvents(t *testing.T) {
	var got []string
	opts := defaults()
	opts.Progress = pipeline.FuncSink(func(ev pipeline.Event) {
		if ev.File != "g.cfg.toml" {
			t.Errorf("event file = %q", ev.File)
		}
		got = append(got, string(ev.Stage)+":"+string(ev.Status))
	})

	if _, err := pipeline.Run(context.Background(), testkit.Shape("one", [][]int{{}}), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var want []string
	for _, st := range pipeline.GraphStages {
		want = append(want, string(st)+":working", string(st)+":done")
	}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v\nwant %v", got, want)
	}
}

func TestRunTracesPassSpans(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), ring)
	timer := observ.NewTimer()
	opts := defaults()
	opts.Timer = timer

	if _, err := pipeline.Run(ctx, testkit.Shape("loop", [][]int{{1}, {2, 3}, {1}, {}}, 1), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ends []string
	for _, ev := range ring.Snapshot() {
		if ev.Scope != trace.ScopePass {
			t.Fatalf("unexpected %s event %q", ev.Scope, ev.Name)
		}
		if ev.Kind == trace.KindSpanEnd {
			ends = append(ends, ev.Name)
		}
	}
	want := []string{"verify", "order", "deferred", "analyze", "reduce"}
	if !slices.Equal(ends, want) {
		t.Fatalf("span ends = %v, want %v", ends, want)
	}
	if n := len(timer.Phases()); n != len(want) {
		t.Fatalf("timer phases = %d, want %d", n, len(want))
	}
}
