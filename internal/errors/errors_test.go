package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SetupError Tests
// -----------------------------------------------------------------------------

func TestSetupError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SetupError
		want string
	}{
		{
			name: "basic error",
			err:  NewSetupError("launch browser", nil),
			want: "setup error: launch browser",
		},
		{
			name: "with worker and cause",
			err:  NewSetupError("launch browser", ErrLaunchFailed).WithWorker(2),
			want: "setup error [worker=2]: launch browser: browser launch failed",
		},
		{
			name: "with all fields",
			err:  NewSetupError("bind", ErrPortInUse).WithWorker(3).WithPort(9225).WithProfileDir("/tmp/p3"),
			want: "setup error [worker=3, port=9225, profile=/tmp/p3]: bind: control port in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetupError_Is(t *testing.T) {
	err := NewSetupError("launch", ErrBinaryNotFound).WithWorker(1)

	if !Is(err, &SetupError{}) {
		t.Error("Is(SetupError{}) = false, want true")
	}
	if !Is(err, ErrBinaryNotFound) {
		t.Error("Is(ErrBinaryNotFound) = false, want true")
	}
	if Is(err, ErrPortInUse) {
		t.Error("Is(ErrPortInUse) = true, want false")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

// -----------------------------------------------------------------------------
// AttemptError Tests
// -----------------------------------------------------------------------------

func TestNewAttemptError_DefaultsCauseToKindSentinel(t *testing.T) {
	err := NewAttemptError(KindElementNotFound, "vote button", nil).WithWorker(1)

	want := "attempt error [worker=1, kind=element_not_found]: vote button: element not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrElementNotFound) {
		t.Error("Is(ErrElementNotFound) = false, want true")
	}
	if err.Step() != "vote button" {
		t.Errorf("Step() = %q, want %q", err.Step(), "vote button")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestAttemptError_MatchesKindWithForeignCause(t *testing.T) {
	cause := errors.New("websocket: close 1006")
	err := NewAttemptError(KindEngineCrashed, "navigate", cause)

	if !Is(err, ErrEngineCrashed) {
		t.Error("Is(ErrEngineCrashed) = false, want true")
	}
	if !Is(err, cause) {
		t.Error("Is(cause) = false, want true")
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"attempt error", NewAttemptError(KindAlreadyVoted, "submit", nil), KindAlreadyVoted},
		{"wrapped attempt error", fmt.Errorf("cycle: %w", NewAttemptError(KindStateUnchanged, "checkbox", nil)), KindStateUnchanged},
		{"bare sentinel", Wrap(ErrNavigationTimeout, "load"), KindNavigationTimeout},
		{"unclassified", errors.New("boom"), KindUnknown},
		{"unregistered kind", NewAttemptError(Kind("captcha"), "submit", nil), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// ConfigError Tests
// -----------------------------------------------------------------------------

func TestConfigError(t *testing.T) {
	err := NewConfigError("worker count out of range").
		WithField("pool.workers").
		WithValue(12).
		WithCause(ErrInvalidWorkerCount)

	want := "config error [field=pool.workers, value=12]: worker count out of range: invalid worker count"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidConfig) {
		t.Error("Is(ErrInvalidConfig) = false, want true")
	}
	if !Is(err, ErrInvalidWorkerCount) {
		t.Error("Is(ErrInvalidWorkerCount) = false, want true")
	}
	if GetSeverity(err) != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(err), SeverityCritical)
	}
}

// -----------------------------------------------------------------------------
// Helper Tests
// -----------------------------------------------------------------------------

func TestClassificationHelpers_PlainErrors(t *testing.T) {
	plain := errors.New("plain")

	if IsRetryable(plain) {
		t.Error("IsRetryable(plain) = true, want false")
	}
	if IsUserFacing(plain) {
		t.Error("IsUserFacing(plain) = true, want false")
	}
	if GetSeverity(plain) != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want %v", GetSeverity(plain), SeverityError)
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", GetSeverity(nil), SeverityDebug)
	}
}

func TestIsInterrupted(t *testing.T) {
	if !IsInterrupted(Wrap(ErrInterrupted, "before submit")) {
		t.Error("IsInterrupted(wrapped) = false, want true")
	}
	if IsInterrupted(ErrEngineCrashed) {
		t.Error("IsInterrupted(ErrEngineCrashed) = true, want false")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}

	err := Wrapf(ErrPortInUse, "worker %d", 4)
	if err.Error() != "worker 4: control port in use" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrPortInUse) {
		t.Error("Wrapf lost the cause")
	}
}
