// Package trace provides span tracing for cfgprep runs.
//
// Tracing shows which graph file and which stage a run is spending its time
// in, and at debug level how the liveness analysis walks the blocks.
//
// # Usage
//
//	cfgprep run --trace=- --trace-level=phase graphs/*.cfg.toml
//
// # Sinks
//
// Nop is used when tracing is off. StreamTracer writes events as they happen,
// RingTracer keeps the recent ones for a dump after a failure, and
// MultiTracer combines the two. Every event carries a lane: the id of the
// driver span of the file it belongs to, so concurrent files stay apart in
// text and Chrome output.
//
// A Heartbeat names the spans that are still open at each beat.
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only ring dumps on failure
//   - LevelPhase: driver and pass boundaries
//   - LevelDetail: per-graph events
//   - LevelDebug: everything, including one event per analyzed block
//
// # Scopes
//
//   - ScopeDriver: one span per input file
//   - ScopePass: pipeline stages (load, order, deferred, analyze, reduce)
//   - ScopeGraph: per-graph work inside a stage
//   - ScopeBlock: per-block analysis steps
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "analyze", parentID)
//	defer span.End("")
package trace
