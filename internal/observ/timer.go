// Package observ accumulates wall-clock time per pipeline stage across all
// files of a run.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is the accumulated time of every run of one named stage.
type Phase struct {
	Name  string
	Dur   time.Duration
	Count int
	Note  string
}

// Timer sums stage durations by name, keeping first-seen order. It is safe
// for the concurrent file workers of a run; a nil Timer records nothing.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
	index  map[string]int
}

func NewTimer() *Timer {
	return &Timer{index: make(map[string]int, 8)}
}

// Mark is an open measurement returned by Begin.
type Mark struct {
	t     *Timer
	name  string
	start time.Time
}

// Begin starts measuring name. End the returned mark to record it.
func (t *Timer) Begin(name string) Mark {
	return Mark{t: t, name: name, start: time.Now()}
}

// End records the time since Begin, replacing the phase note when note is
// not empty.
func (m Mark) End(note string) time.Duration {
	d := time.Since(m.start)
	m.t.record(m.name, d, note)
	return d
}

// Add records one run of name that took dur.
func (t *Timer) Add(name string, dur time.Duration) {
	t.record(name, dur, "")
}

func (t *Timer) record(name string, dur time.Duration, note string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[name]
	if !ok {
		i = len(t.phases)
		t.index[name] = i
		t.phases = append(t.phases, Phase{Name: name})
	}
	p := &t.phases[i]
	p.Dur += dur
	p.Count++
	if note != "" {
		p.Note = note
	}
}

// Phases returns a copy of the phases in first-seen order.
func (t *Timer) Phases() []Phase {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.phases...)
}

// Summary renders the phases as the --timings table. Phases that ran more
// than once show their run count.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&sb, "  %-12s %9.2f ms", p.Name, p.DurationMS)
		if p.Runs > 1 {
			fmt.Fprintf(&sb, "  x%d", p.Runs)
		}
		if p.Note != "" {
			fmt.Fprintf(&sb, "  (%s)", p.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %9.2f ms\n", "total", report.TotalMS)
	return sb.String()
}

// PhaseReport is the JSON form of a Phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Runs       int     `json:"runs"`
	Note       string  `json:"note,omitempty"`
}

// Report is the JSON form of a Timer.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	var report Report
	var total time.Duration
	for _, p := range t.Phases() {
		total += p.Dur
		report.Phases = append(report.Phases, PhaseReport{
			Name:       p.Name,
			DurationMS: Millis(p.Dur),
			Runs:       p.Count,
			Note:       p.Note,
		})
	}
	report.TotalMS = Millis(total)
	return report
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
