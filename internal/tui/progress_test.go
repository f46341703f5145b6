package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
	"github.com/Iron-Ham/pollrunner/internal/event"
)

func TestPrinter_Lines(t *testing.T) {
	tests := []struct {
		name  string
		event event.Event
		want  string
	}{
		{"started", event.NewWorkerStartedEvent(1, 9223, "/tmp/p1"), "[w1] session ready on port 9223"},
		{"setup failed", event.NewWorkerSetupFailedEvent(2, apperrors.ErrPortInUse), "[w2] failed to start: control port in use"},
		{"success", event.NewAttemptSucceededEvent(3, 7, 2340*time.Millisecond), "[w3] vote submitted (total 7, 2.3s)"},
		{"stuck", event.NewWorkerStuckEvent(1, 10), "after 10 consecutive failures"},
		{"stopped", event.NewWorkerStoppedEvent(1, 4, 2), "[w1] stopped: 4 votes, 2 failures"},
		{"pool stopping", event.NewPoolStoppingEvent("signal"), "stopping all workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf, false).Handle(tt.event)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
			if strings.Contains(buf.String(), "\x1b[") {
				t.Error("non-terminal output should not contain escape codes")
			}
		})
	}
}

func TestPrinter_FailuresOnlyWhenVerbose(t *testing.T) {
	ev := event.NewAttemptFailedEvent(2, apperrors.NewAttemptError(apperrors.KindNavigationTimeout, "navigate", errors.New("deadline")), 3, 2)

	var quiet bytes.Buffer
	NewPrinter(&quiet, false).Handle(ev)
	if quiet.Len() != 0 {
		t.Errorf("quiet printer wrote %q", quiet.String())
	}

	var loud bytes.Buffer
	NewPrinter(&loud, true).Handle(ev)
	for _, want := range []string{"[w2]", "navigation_timeout", "streak 2"} {
		if !strings.Contains(loud.String(), want) {
			t.Errorf("verbose output %q missing %q", loud.String(), want)
		}
	}
}

func TestPrinter_Attach(t *testing.T) {
	var buf bytes.Buffer
	bus := event.NewBus(nil)
	detach := NewPrinter(&buf, false).Attach(bus)

	bus.Publish(event.NewWorkerStartedEvent(1, 9223, ""))
	detach()
	bus.Publish(event.NewWorkerStartedEvent(2, 9224, ""))

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("printed %d lines, want 1:\n%s", got, buf.String())
	}
}
