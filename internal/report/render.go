package report

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/pollrunner/internal/tui/styles"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// maxErrorWidth bounds error text in the worker table.
const maxErrorWidth = 60

// Render writes r to w in the given format.
func Render(w io.Writer, r *Report, format string) error {
	switch format {
	case FormatText, "":
		return RenderText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile renders r into path, creating parent directories as needed.
func WriteFile(path string, r *Report, format string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Render(f, r, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// RenderText writes the human-readable summary. Colors are only emitted when
// w is a terminal.
func RenderText(w io.Writer, r *Report) error {
	p := styles.NewPalette(lipgloss.NewRenderer(w))
	rule := p.Muted.Render(strings.Repeat("─", 50))

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(p.Title.Render("RUN SUMMARY") + "\n")
	b.WriteString(rule + "\n")
	field := func(label, value string) {
		b.WriteString(p.Label.Render(fmt.Sprintf("%-9s", label+":")) + " " + value + "\n")
	}
	field("Run", r.RunID)
	if !r.StartedAt.IsZero() {
		field("Started", r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	field("Elapsed", FormatDuration(r.Elapsed))
	field("Workers", fmt.Sprintf("%d of %d started", r.WorkersStarted, len(r.Workers)))
	field("Votes", p.Good.Render(fmt.Sprintf("%d submitted", r.TotalSuccesses))+", "+failureStyle(p, r.TotalFailures).Render(fmt.Sprintf("%d failed", r.TotalFailures)))

	if kinds := r.FailuresByKind(); len(kinds) > 0 {
		names := slices.Sorted(maps.Keys(kinds))
		parts := make([]string, 0, len(names))
		for _, k := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[k]))
		}
		field("Failures", strings.Join(parts, " "))
	}
	b.WriteString("\n")

	b.WriteString(p.Title.Render("WORKERS") + "\n")
	b.WriteString(rule + "\n")
	b.WriteString(p.Heading.Render(fmt.Sprintf("%-3s %-18s %6s %6s %7s  %s", "#", "STATE", "VOTES", "FAILS", "STREAK", "NOTES")) + "\n")
	for _, wk := range r.Workers {
		status := WorkerStatus(wk)
		// Pad before styling so escape codes do not skew the columns
		state := p.Status(status) + strings.Repeat(" ", max(0, 18-ansi.StringWidth(styles.StatusIcon(status)+" "+status)))
		line := fmt.Sprintf("%-3d %s %6d %6d %7d  %s",
			wk.Index, state, wk.Successes, wk.Failures, wk.ConsecutiveFailures, notes(p, wk))
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WorkerStatus returns the display status of a worker entry.
func WorkerStatus(w Worker) string {
	switch {
	case !w.Started && w.SetupError != "":
		return StatusFailedToStart
	case w.Stuck:
		return StatusStuck
	case w.State != "":
		return w.State
	default:
		return StatusPending
	}
}

func notes(p styles.Palette, w Worker) string {
	switch {
	case w.SetupError != "":
		return p.Bad.Render(ansi.Truncate(w.SetupError, maxErrorWidth, "…"))
	case w.LastError != "" && w.ConsecutiveFailures > 0:
		return p.Muted.Render(ansi.Truncate("last: "+w.LastError, maxErrorWidth, "…"))
	default:
		return ""
	}
}

func failureStyle(p styles.Palette, n int64) lipgloss.Style {
	if n == 0 {
		return p.Muted
	}
	return p.Warn
}

// FormatDuration renders d rounded to the second, e.g. "1h02m03s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
