// Package ui renders live progress of a multi-file run.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"cfgprep/internal/pipeline"
)

// track is every stage a file can pass through, in order.
var track = []pipeline.Stage{
	pipeline.StageLoad,
	pipeline.StageVerify,
	pipeline.StageOrder,
	pipeline.StageDeferred,
	pipeline.StageAnalyze,
	pipeline.StageReduce,
	pipeline.StageWrite,
}

type rowState uint8

const (
	rowQueued rowState = iota
	rowRunning
	rowCached
	rowDone
	rowFailed
)

// fileRow is the display state of one input file.
type fileRow struct {
	path    string
	state   rowState
	stage   pipeline.Stage
	err     string
	elapsed time.Duration
	// cached sticks once the load stage hits the cache.
	cached bool
}

func (r *fileRow) finished() bool { return r.state == rowDone || r.state == rowFailed }

func (r *fileRow) label() string {
	switch r.state {
	case rowQueued:
		return "queued"
	case rowCached:
		return "cached"
	case rowDone:
		if r.cached {
			return "cached"
		}
		return "done"
	case rowFailed:
		return "error"
	default:
		return string(r.stage)
	}
}

// fraction is how far along the track the file is.
func (r *fileRow) fraction() float64 {
	if r.finished() {
		return 1
	}
	if r.state == rowQueued {
		return 0
	}
	pos := slices.Index(track, r.stage)
	if pos < 0 {
		return 0
	}
	return (float64(pos) + 0.5) / float64(len(track))
}

// apply folds ev into the row. Finished rows ignore later events.
func (r *fileRow) apply(ev pipeline.Event) {
	if r.finished() {
		return
	}
	r.stage = ev.Stage
	switch ev.Status {
	case pipeline.StatusQueued:
		r.state = rowQueued
	case pipeline.StatusWorking:
		r.state = rowRunning
	case pipeline.StatusCached:
		r.state, r.cached = rowCached, true
	case pipeline.StatusError:
		r.state, r.elapsed = rowFailed, ev.Elapsed
		if ev.Err != nil {
			r.err = firstLine(ev.Err.Error())
		}
	case pipeline.StatusDone:
		if ev.Stage == pipeline.StageWrite {
			r.state, r.elapsed = rowDone, ev.Elapsed
		}
	}
}

type progressModel struct {
	title   string
	events  <-chan pipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []fileRow
	byPath  map[string]int
	width   int
	closed  bool
}

type eventMsg pipeline.Event
type closedMsg struct{}

// NewProgressModel returns a Bubble Tea model with one row per file. It
// quits once events is closed.
func NewProgressModel(title string, files []string, events <-chan pipeline.Event) tea.Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = runningStyle

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		rows:    make([]fileRow, len(files)),
		byPath:  make(map[string]int, len(files)),
		width:   80,
	}
	m.bar.Width = m.width - 4
	for i, file := range files {
		m.rows[i] = fileRow{path: file}
		m.byPath[file] = i
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

// next waits for the driver's next event.
func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		if ev, ok := <-m.events; ok {
			return eventMsg(ev)
		}
		return closedMsg{}
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.applyEvent(pipeline.Event(msg)), m.next())
	case closedMsg:
		m.closed = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = max(msg.Width-4, 10)
		}
	case spinner.TickMsg:
		if !m.closed {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model) //nolint:errcheck,forcetypeassert // progress.Model.Update returns a progress.Model
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) applyEvent(ev pipeline.Event) tea.Cmd {
	i, ok := m.byPath[ev.File]
	if !ok {
		return nil
	}
	m.rows[i].apply(ev)
	return m.bar.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	var sum float64
	for i := range m.rows {
		sum += m.rows[i].fraction()
	}
	return sum / float64(len(m.rows))
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func (r *fileRow) style() lipgloss.Style {
	switch r.state {
	case rowQueued:
		return queuedStyle
	case rowCached, rowDone:
		return okStyle
	case rowFailed:
		return failStyle
	default:
		return runningStyle
	}
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	finished := 0
	for i := range m.rows {
		if m.rows[i].finished() {
			finished++
		}
	}
	lead := m.spinner.View()
	if m.closed {
		lead = okStyle.Render("✓")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", lead, titleStyle.Render(fmt.Sprintf("%s [%d/%d]", m.title, finished, len(m.rows))))

	const labelWidth, timeWidth = 9, 10
	pathWidth := max(m.width-labelWidth-timeWidth-6, 20)
	for i := range m.rows {
		r := &m.rows[i]
		label := r.style().Render(fmt.Sprintf("%-*s", labelWidth, r.label()))
		took := ""
		if r.finished() && r.elapsed > 0 {
			took = fmt.Sprintf("%8.1fms", float64(r.elapsed)/float64(time.Millisecond))
		}
		fmt.Fprintf(&b, "  %s %-*s %s\n", label, pathWidth, truncate(r.path, pathWidth), took)
		if r.err != "" {
			fmt.Fprintf(&b, "  %*s %s\n", labelWidth, "", failStyle.Render(truncate(r.err, pathWidth+timeWidth)))
		}
	}

	b.WriteByte('\n')
	if m.closed {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteByte('\n')
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncate cuts value to width terminal cells, marking the cut with "...".
func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
