package trace

import (
	"fmt"
	"strings"
	"time"
)

// Tracer receives trace events. Implementations must be safe for concurrent
// use and must not retain ev after Emit returns.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

// Kind is what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = []string{"", "begin", "end", "point", "heartbeat"}

func (k Kind) String() string { return nameOf(kindNames, int(k)) }

// Scope is the granularity of an event. Coarser scopes have smaller values.
type Scope uint8

const (
	// ScopeDriver covers one input file.
	ScopeDriver Scope = iota + 1
	// ScopePass covers one pipeline stage.
	ScopePass
	// ScopeGraph covers per-graph work inside a stage.
	ScopeGraph
	// ScopeBlock covers a single block visited by an analysis.
	ScopeBlock
)

var scopeNames = []string{"", "driver", "pass", "graph", "block"}

func (s Scope) String() string { return nameOf(scopeNames, int(s)) }

// Level controls which scopes reach a tracer.
type Level uint8

const (
	LevelOff Level = iota
	// LevelError records nothing up front; the ring is dumped on failure.
	LevelError
	LevelPhase
	LevelDetail
	LevelDebug
)

var levelNames = []string{"off", "error", "phase", "detail", "debug"}

// levelDepth is the finest scope each level admits.
var levelDepth = []Scope{0, 0, ScopePass, ScopeGraph, ScopeBlock}

func (l Level) String() string { return nameOf(levelNames, int(l)) }

// ShouldEmit reports whether events of scope pass a tracer at level l.
func (l Level) ShouldEmit(scope Scope) bool {
	if int(l) >= len(levelDepth) {
		return false
	}
	return scope > 0 && scope <= levelDepth[l]
}

// ParseLevel converts a --trace-level value.
func ParseLevel(s string) (Level, error) {
	i, err := lookup("level", levelNames, s)
	return Level(i), err //nolint:gosec // G115: index into a five-entry table
}

// Event is one trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	// Lane is the outermost open span the event belongs to, normally the
	// driver span of one input file. Chrome output uses it as the thread.
	Lane   uint64
	Name   string // "file:a.cfg.toml", "analyze", "block:b3"
	Detail string
	Extra  map[string]string
}

type nopTracer struct{}

func (nopTracer) Emit(*Event) {}
func (nopTracer) Flush() error { return nil }
func (nopTracer) Close() error { return nil }
func (nopTracer) Level() Level { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards everything.
var Nop Tracer = nopTracer{}

func nameOf(names []string, i int) string {
	if i < 0 || i >= len(names) || names[i] == "" {
		return "unknown"
	}
	return names[i]
}

func lookup(what string, names []string, s string) (int, error) {
	for i, name := range names {
		if name != "" && strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid trace %s %q (expected %s)", what, s, strings.Join(names, "|"))
}
