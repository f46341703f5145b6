package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrForceQuit is returned by Run when the user pressed ctrl+c again while
// the workers were stopping.
var ErrForceQuit = errors.New("forced exit while stopping")

// App wraps the bubbletea program.
type App struct {
	program *tea.Program
	model   Model
}

// New creates a dashboard for source. stop is called when the user presses q.
func New(source Source, stop func()) *App {
	return &App{model: NewModel(source, stop)}
}

// Run shows the dashboard until the user stops the run, leaves the
// dashboard, or ctx is cancelled. It reports whether the user asked to stop.
func (a *App) Run(ctx context.Context) (stopRequested bool, err error) {
	a.program = tea.NewProgram(a.model, tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// stopped elsewhere: signal, or every worker gone
			a.program.Send(stoppedMsg{})
		case <-done:
		}
	}()

	final, err := a.program.Run()
	if err != nil {
		return false, fmt.Errorf("dashboard error: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return false, nil
	}
	if m.Forced() {
		return true, ErrForceQuit
	}
	return m.Stopping(), nil
}
