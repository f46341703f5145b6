// Package tui renders a live dashboard of worker counters while a run is in
// progress.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/pollrunner/internal/report"
	"github.com/Iron-Ham/pollrunner/internal/tui/styles"
)

// RefreshInterval is how often the dashboard re-reads worker counters.
const RefreshInterval = 250 * time.Millisecond

// Source provides the live worker view. *pool.Pool satisfies it.
type Source interface {
	RunID() string
	Snapshot() []report.Worker
}

// Messages

type tickMsg time.Time

// stoppedMsg is delivered once the stop function has returned.
type stoppedMsg struct{}

// Model is the bubbletea model of the dashboard.
type Model struct {
	source    Source
	stop      func()
	startedAt time.Time
	now       func() time.Time

	keys    keyMap
	spinner spinner.Model
	palette styles.Palette

	workers  []report.Worker
	width    int
	stopping bool
	quitting bool
	detached bool
	forced   bool
}

// NewModel creates a dashboard model reading from source. stop is invoked
// once when the user asks to stop; it may block.
func NewModel(source Source, stop func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = sp.Style.Foreground(styles.PrimaryColor)

	return Model{
		source:    source,
		stop:      stop,
		startedAt: time.Now(),
		now:       time.Now,
		keys:      defaultKeys(),
		spinner:   sp,
		palette:   styles.NewPalette(nil),
		workers:   source.Snapshot(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh tick and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.workers = m.source.Snapshot()
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stoppedMsg:
		m.workers = m.source.Snapshot()
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.stopping && key.Matches(msg, m.keys.Kill):
		m.quitting = true
		m.forced = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Stop):
		if m.stopping {
			return m, nil
		}
		m.stopping = true
		stop := m.stop
		return m, func() tea.Msg {
			if stop != nil {
				stop()
			}
			return stoppedMsg{}
		}
	case key.Matches(msg, m.keys.Force):
		m.quitting = true
		m.detached = true
		return m, tea.Quit
	}
	return m, nil
}

// Stopping reports whether the user asked to stop the run.
func (m Model) Stopping() bool { return m.stopping }

// Forced reports whether the user asked to exit without waiting for the
// stop to finish.
func (m Model) Forced() bool { return m.forced }

// Detached reports whether the user left the dashboard without stopping.
func (m Model) Detached() bool { return m.detached }

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	p := m.palette

	var b strings.Builder
	header := p.Title.Render("pollrunner") + "  " + p.Muted.Render("run "+m.source.RunID())
	b.WriteString(header + "\n")

	var succ, fail int64
	for _, w := range m.workers {
		succ += w.Successes
		fail += w.Failures
	}
	elapsed := report.FormatDuration(m.now().Sub(m.startedAt))
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		p.Label.Render("elapsed"), p.Value.Render(elapsed),
		p.Label.Render("votes"), p.Good.Render(fmt.Sprint(succ)),
		p.Label.Render("failures"), p.Warn.Render(fmt.Sprint(fail)),
	))
	b.WriteString("\n")

	b.WriteString(p.Heading.Render(fmt.Sprintf("%-3s %-18s %6s %6s %7s  %s", "#", "STATE", "VOTES", "FAILS", "STREAK", "LAST ERROR")) + "\n")
	for _, w := range m.workers {
		b.WriteString(m.renderWorker(w) + "\n")
	}

	if m.stopping {
		b.WriteString("\n" + m.spinner.View() + " " + p.Warn.Render("stopping workers, waiting for browsers to close…") +
			"\n" + p.Help.Render(m.keys.Kill.Help().Key+" again to "+m.keys.Kill.Help().Desc))
	} else {
		b.WriteString(p.Help.Render(m.keys.help()))
	}
	return p.Box.Render(b.String()) + "\n"
}

func (m Model) renderWorker(w report.Worker) string {
	status := report.WorkerStatus(w)
	label := styles.StatusIcon(status) + " " + status
	state := m.palette.Status(status) + strings.Repeat(" ", max(0, 18-ansi.StringWidth(label)))
	if status == report.StatusStarting || status == report.StatusStopping {
		state = m.spinner.View() + " " + state
	}

	lastErr := ""
	switch {
	case w.SetupError != "":
		lastErr = m.palette.Bad.Render(ansi.Truncate(w.SetupError, m.errorWidth(), "…"))
	case w.ConsecutiveFailures > 0:
		lastErr = m.palette.Muted.Render(ansi.Truncate(w.LastError, m.errorWidth(), "…"))
	}

	line := fmt.Sprintf("%-3d %s %6d %6d %7d  %s", w.Index, state, w.Successes, w.Failures, w.ConsecutiveFailures, lastErr)
	return strings.TrimRight(line, " ")
}

// errorWidth fits the error column to the terminal, leaving room for the
// fixed columns and the box border.
func (m Model) errorWidth() int {
	const fixed = 3 + 1 + 18 + 1 + 6 + 1 + 6 + 1 + 7 + 2 + 4
	if m.width <= fixed+10 {
		return 40
	}
	return m.width - fixed
}
