package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/pollrunner/internal/event"
	"github.com/Iron-Ham/pollrunner/internal/tui/styles"
)

// Printer writes one line per bus event. It is the non-interactive
// counterpart of the dashboard.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	palette styles.Palette
	verbose bool
}

// NewPrinter creates a Printer writing to w. Colors are used only when w is
// a terminal. With verbose unset, individual failures are not printed.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	return &Printer{
		w:       w,
		palette: styles.NewPalette(lipgloss.NewRenderer(w)),
		verbose: verbose,
	}
}

// Attach subscribes the printer to bus and returns the unsubscribe func.
func (p *Printer) Attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(p.Handle)
	return func() { bus.Unsubscribe(id) }
}

// Handle prints e if it is of interest.
func (p *Printer) Handle(e event.Event) {
	pal := p.palette
	var line string

	switch ev := e.(type) {
	case event.WorkerStartedEvent:
		line = fmt.Sprintf("%s session ready on port %d", tag(ev.Worker), ev.Port)
	case event.WorkerSetupFailedEvent:
		line = fmt.Sprintf("%s %s %s", tag(ev.Worker), pal.Bad.Render("failed to start:"), errText(ev.Err))
	case event.AttemptSucceededEvent:
		line = fmt.Sprintf("%s %s (total %d, %s)", tag(ev.Worker), pal.Good.Render("vote submitted"), ev.Successes, ev.Duration.Round(100*time.Millisecond))
	case event.AttemptFailedEvent:
		if !p.verbose {
			return
		}
		line = fmt.Sprintf("%s %s %s (streak %d)", tag(ev.Worker), pal.Warn.Render(string(ev.Kind)), pal.Muted.Render(ansi.Truncate(errText(ev.Err), 80, "…")), ev.ConsecutiveFailures)
	case event.WorkerStuckEvent:
		line = fmt.Sprintf("%s %s after %d consecutive failures, still retrying", tag(ev.Worker), pal.Status("stuck"), ev.ConsecutiveFailures)
	case event.WorkerStoppedEvent:
		line = fmt.Sprintf("%s stopped: %d votes, %d failures", tag(ev.Worker), ev.Successes, ev.Failures)
	case event.PoolStoppingEvent:
		line = pal.Warn.Render("stopping all workers…")
	default:
		return
	}

	stamp := pal.Muted.Render(e.Timestamp().Format("15:04:05"))
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, stamp+" "+line)
}

func tag(worker int) string {
	return fmt.Sprintf("[w%d]", worker)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
