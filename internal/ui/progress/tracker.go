// Package progress shows a status line on stderr while a cache entry is
// copied. Nothing here is interactive; the program only renders.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/raphi011/buildcache/internal/ui/styles"
)

const (
	// maxPathWidth bounds the path shown next to the counter.
	maxPathWidth = 48

	// updateInterval throttles redraws while copying many small files.
	updateInterval = 50 * time.Millisecond

	// stopTimeout bounds how long Stop waits for the last frame.
	stopTimeout = 500 * time.Millisecond
)

// copied reports the running count and the last copied path.
type copied struct {
	count int
	path  string
}

// statusModel renders "<spinner> Restoring... 1,234 paths  some/path".
type statusModel struct {
	spinner spinner.Model
	verb    string
	count   int
	path    string
}

func newStatusModel(verb string) statusModel {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = styles.AccentStyle
	return statusModel{spinner: sp, verb: verb}
}

func (m statusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(copied); ok {
		m.count, m.path = msg.count, msg.path
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m statusModel) View() tea.View {
	return tea.NewView(m.line())
}

func (m statusModel) line() string {
	return m.spinner.View() + " " + status(m.verb, m.count, m.path)
}

// status formats the text after the spinner.
func status(verb string, count int, path string) string {
	msg := fmt.Sprintf("%s... %s paths", verb, humanize.Comma(int64(count)))
	if path == "" {
		return msg
	}
	return msg + "  " + ansi.Truncate(path, maxPathWidth, "…")
}

// Tracker counts copied paths and, when enabled, draws them on a status
// line. Observe matches the callback of cache.WithProgress.
type Tracker struct {
	out     io.Writer
	verb    string
	enabled bool

	program *tea.Program // nil unless started and enabled
	done    chan struct{}
	count   int
	last    time.Time
}

// NewTracker creates a tracker labelled verb ("Restoring", "Saving").
// When enabled is false the tracker only counts.
func NewTracker(out io.Writer, verb string, enabled bool) *Tracker {
	return &Tracker{out: out, verb: verb, enabled: enabled}
}

// Start shows the status line. Calling Start twice is a no-op.
func (t *Tracker) Start() {
	if !t.enabled || t.program != nil {
		return
	}

	// Stdin stays untouched: restore may run inside pipelines that feed it
	t.program = tea.NewProgram(newStatusModel(t.verb),
		tea.WithoutSignalHandler(),
		tea.WithInput(nil),
		tea.WithOutput(t.out),
		tea.WithColorProfile(colorprofile.Detect(t.out, os.Environ())),
	)
	t.done = make(chan struct{})

	go func(p *tea.Program, done chan struct{}) {
		_, _ = p.Run()
		close(done)
	}(t.program, t.done)
}

// Observe records one copied path.
func (t *Tracker) Observe(rel string) {
	t.count++
	if t.program == nil {
		return
	}

	now := time.Now()
	if now.Sub(t.last) < updateInterval {
		return
	}
	t.last = now
	t.program.Send(copied{count: t.count, path: rel})
}

// Count returns the number of paths observed so far.
func (t *Tracker) Count() int {
	return t.count
}

// Stop removes the status line.
func (t *Tracker) Stop() {
	if t.program == nil {
		return
	}
	t.program.Quit()

	select {
	case <-t.done:
	case <-time.After(stopTimeout):
	}
	t.program = nil

	fmt.Fprint(t.out, "\r\033[K")
}
