package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Stage describes one step applied to a graph.
type Stage string

const (
	// StageLoad is reading and decoding the graph file.
	StageLoad Stage = "load"
	// StageVerify is structural validation of the input graph.
	StageVerify Stage = "verify"
	// StageOrder is the special reverse postorder and block renumbering.
	StageOrder Stage = "order"
	// StageDeferred is deferred-block propagation.
	StageDeferred Stage = "deferred"
	// StageAnalyze is the dead code analysis.
	StageAnalyze Stage = "analyze"
	// StageReduce is the copy through the reducer stack.
	StageReduce Stage = "reduce"
	// StageWrite is emitting the results.
	StageWrite Stage = "write"
)

// GraphStages lists the stages Run may execute, in order.
var GraphStages = []Stage{StageVerify, StageOrder, StageDeferred, StageAnalyze, StageReduce}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the file is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the stage is running.
	StatusWorking Status = "working"
	// StatusCached indicates the result came from the cache.
	StatusCached Status = "cached"
	// StatusDone indicates the stage finished.
	StatusDone Status = "done"
	// StatusError indicates the stage failed.
	StatusError Status = "error"
)

// Event reports progress for a file.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// StageTime is the wall time of one stage that ran.
type StageTime struct {
	Stage   Stage
	Elapsed time.Duration
}

// Timings lists the stages Run executed, in execution order. A result
// restored from the cache has none.
type Timings []StageTime

// Has reports whether stage ran.
func (t Timings) Has(stage Stage) bool {
	return slices.ContainsFunc(t, func(st StageTime) bool { return st.Stage == stage })
}

// Duration returns how long stage took, or 0 if it did not run.
func (t Timings) Duration(stage Stage) time.Duration {
	for _, st := range t {
		if st.Stage == stage {
			return st.Elapsed
		}
	}
	return 0
}

// Total sums every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, st := range t {
		total += st.Elapsed
	}
	return total
}

// String renders "verify 0.12ms, order 0.03ms, ...".
func (t Timings) String() string {
	parts := make([]string, len(t))
	for i, st := range t {
		parts[i] = fmt.Sprintf("%s %.2fms", st.Stage, float64(st.Elapsed)/float64(time.Millisecond))
	}
	return strings.Join(parts, ", ")
}
