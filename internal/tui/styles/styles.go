// Package styles holds the colors and lipgloss styles shared by the dashboard,
// the progress printer and the text report.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Worker status colors
	StatusRunning  = lipgloss.Color("#10B981") // Green
	StatusStarting = lipgloss.Color("#60A5FA") // Blue
	StatusStopping = lipgloss.Color("#FBBF24") // Yellow
	StatusStopped  = lipgloss.Color("#A78BFA") // Purple
	StatusFailed   = lipgloss.Color("#F87171") // Red
	StatusStuck    = lipgloss.Color("#FB923C") // Orange
)

// StatusColor returns the color for a worker status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return StatusRunning
	case "starting":
		return StatusStarting
	case "stopping":
		return StatusStopping
	case "stopped":
		return StatusStopped
	case "failed_to_start":
		return StatusFailed
	case "stuck":
		return StatusStuck
	default:
		return MutedColor
	}
}

// StatusIcon returns the icon for a worker status.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return "●"
	case "pending", "starting":
		return "○"
	case "stopping":
		return "◐"
	case "stopped":
		return "■"
	case "failed_to_start":
		return "✗"
	case "stuck":
		return "⏱"
	default:
		return "●"
	}
}

// Palette is the set of styles bound to one renderer. Output written to a
// file or pipe gets a renderer without color, a terminal gets full color.
type Palette struct {
	Title   lipgloss.Style
	Heading lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Good    lipgloss.Style
	Warn    lipgloss.Style
	Bad     lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
	Help    lipgloss.Style

	r *lipgloss.Renderer
}

// NewPalette creates a Palette for r. A nil renderer uses the default one.
func NewPalette(r *lipgloss.Renderer) Palette {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Palette{
		Title:   r.NewStyle().Bold(true).Foreground(PrimaryColor),
		Heading: r.NewStyle().Bold(true).Foreground(TextColor),
		Label:   r.NewStyle().Foreground(MutedColor),
		Value:   r.NewStyle().Foreground(TextColor),
		Good:    r.NewStyle().Foreground(SecondaryColor).Bold(true),
		Warn:    r.NewStyle().Foreground(WarningColor).Bold(true),
		Bad:     r.NewStyle().Foreground(ErrorColor).Bold(true),
		Muted:   r.NewStyle().Foreground(MutedColor),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1),
		Help: r.NewStyle().Foreground(MutedColor).MarginTop(1),
		r:    r,
	}
}

// Status renders a worker status with its icon and color.
func (p Palette) Status(status string) string {
	return p.r.NewStyle().Foreground(StatusColor(status)).Render(StatusIcon(status) + " " + status)
}
