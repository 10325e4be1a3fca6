package trace

import (
	"io"
	"sync"
)

// filter holds the level shared by every sink.
type filter struct {
	level Level
}

// Level returns the configured level.
func (f filter) Level() Level { return f.level }

// Enabled reports whether anything can be recorded.
func (f filter) Enabled() bool { return f.level > LevelOff }

// admits lets heartbeats through at any enabled level.
func (f filter) admits(ev *Event) bool {
	return ev.Kind == KindHeartbeat || f.level.ShouldEmit(ev.Scope)
}

// framing wraps a stream of encoded events into a single document.
type framing struct {
	open, sep, close string
}

var framings = map[Format]framing{
	FormatChrome: {open: "{\"traceEvents\":[\n", sep: ",\n", close: "\n]}\n"},
}

// StreamTracer writes every admitted event to w as it arrives. Write
// errors are dropped so tracing never fails a run.
type StreamTracer struct {
	filter
	format Format
	frame  framing

	mu      sync.Mutex
	w       io.Writer
	buf     []byte
	written int
	closed  bool
	// closer is set when the tracer opened w itself.
	closer io.Closer
}

// NewStreamTracer streams events at level to w in format.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	st := &StreamTracer{filter: filter{level: level}, format: format, frame: framings[format], w: w}
	if st.frame.open != "" {
		_, _ = io.WriteString(w, st.frame.open) //nolint:errcheck
	}
	return st
}

// Emit encodes ev and writes it.
func (t *StreamTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.buf = t.buf[:0]
	if t.written > 0 {
		t.buf = append(t.buf, t.frame.sep...)
	}
	t.buf = appendEvent(t.buf, ev, t.format)
	t.written++
	_, _ = t.w.Write(t.buf) //nolint:errcheck
}

// Flush flushes w when it buffers.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close terminates the document, flushes, and closes an output the tracer
// opened itself. Emit after Close is ignored.
func (t *StreamTracer) Close() error {
	t.mu.Lock()
	if !t.closed && t.frame.close != "" {
		_, _ = io.WriteString(t.w, t.frame.close) //nolint:errcheck
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.Flush(); err != nil {
		return err
	}
	if t.closer != nil {
		c := t.closer
		t.closer = nil
		return c.Close()
	}
	return nil
}

// RingTracer keeps the most recent events in memory for post-mortem dumps.
type RingTracer struct {
	filter

	mu    sync.Mutex
	slots []Event
	total uint64
}

// NewRingTracer keeps the last capacity events (4096 when capacity <= 0).
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	return &RingTracer{filter: filter{level: level}, slots: make([]Event, capacity)}
}

// Emit stores a copy of ev, overwriting the oldest event when full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	t.mu.Lock()
	t.slots[t.total%uint64(len(t.slots))] = *ev
	t.total++
	t.mu.Unlock()
}

// Snapshot returns the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := uint64(len(t.slots))
	n := min(t.total, size)
	out := make([]Event, n)
	first := t.total - n
	for i := range out {
		out[i] = t.slots[(first+uint64(i))%size] //nolint:gosec // G115: i < n
	}
	return out
}

// Dump writes the snapshot to w in format.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	frame := framings[format]
	data := []byte(frame.open)
	for i, ev := range t.Snapshot() {
		if i > 0 {
			data = append(data, frame.sep...)
		}
		data = appendEvent(data, &ev, format)
	}
	data = append(data, frame.close...)
	_, err := w.Write(data)
	return err
}

func (t *RingTracer) Flush() error { return nil }
func (t *RingTracer) Close() error { return nil }

// MultiTracer forwards every event to several tracers, each applying its
// own level.
type MultiTracer struct {
	filter
	tracers []Tracer
}

// NewMultiTracer fans out to tracers; level is what callers see.
func NewMultiTracer(level Level, tracers ...Tracer) *MultiTracer {
	return &MultiTracer{filter: filter{level: level}, tracers: tracers}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

func (t *MultiTracer) Flush() error { return t.each(Tracer.Flush) }
func (t *MultiTracer) Close() error { return t.each(Tracer.Close) }

// each applies fn to every tracer and returns the first error.
func (t *MultiTracer) each(fn func(Tracer) error) error {
	var first error
	for _, tr := range t.tracers {
		if err := fn(tr); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RingOf returns the ring buffer behind t, looking through multi tracers,
// or nil.
func RingOf(t Tracer) *RingTracer {
	switch t := t.(type) {
	case *RingTracer:
		return t
	case *MultiTracer:
		for _, tr := range t.tracers {
			if r := RingOf(tr); r != nil {
				return r
			}
		}
	}
	return nil
}
