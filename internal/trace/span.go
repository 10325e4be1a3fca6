package trace

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var (
	seq     atomic.Uint64
	spanIDs atomic.Uint64

	// openSpans maps the id of every span between Begin and End to its *Span.
	openSpans sync.Map
)

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 {
	return seq.Add(1)
}

// Span is an open interval of work. The zero-cost span returned for
// filtered scopes accepts every call and emits nothing.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	lane    uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

var discarded = &Span{tracer: Nop}

// Begin opens a span under parent (0 for a root) and emits its begin event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return discarded
	}
	s := &Span{
		tracer:  t,
		id:      spanIDs.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	s.lane = s.id
	if parent != 0 {
		s.lane = laneOf(parent)
	}
	openSpans.Store(s.id, s)
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

// End closes the span, emits its end event with detail and any extras, and
// returns how long the span was open.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	now := time.Now()
	openSpans.Delete(s.id)
	ev := s.event(KindSpanEnd, now, detail)
	ev.Extra = s.extra
	s.tracer.Emit(ev)
	return now.Sub(s.started)
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// ID returns the span id, or 0 for a discarded span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	return &Event{
		Time:     at,
		Seq:      NextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Lane:     s.lane,
		Name:     s.name,
		Detail:   detail,
	}
}

// Point emits an instant event under parent.
func Point(t Tracer, scope Scope, name string, parent uint64, detail string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Lane:     laneOf(parent),
		Name:     name,
		Detail:   detail,
	})
}

// laneOf returns the lane of an open span; a closed or unknown parent
// starts a lane of its own.
func laneOf(parent uint64) uint64 {
	if v, ok := openSpans.Load(parent); ok {
		return v.(*Span).lane //nolint:errcheck,forcetypeassert // only *Span is stored
	}
	return parent
}

// openSpanNames lists the spans still open, oldest first.
func openSpanNames() []string {
	var open []*Span
	openSpans.Range(func(_, v any) bool {
		open = append(open, v.(*Span)) //nolint:errcheck,forcetypeassert // only *Span is stored
		return true
	})
	slices.SortFunc(open, func(a, b *Span) int { return cmp.Compare(a.id, b.id) })
	names := make([]string, len(open))
	for i, s := range open {
		names[i] = s.name
	}
	return names
}
