// Package errors provides centralized error definitions and error handling utilities
// for pollrunner. It defines the error taxonomy used across workers, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Three domain errors cover everything a run can fail with:
//   - SetupError: a worker's browser session could not be opened. Fatal to that
//     worker only; the rest of the pool keeps running.
//   - AttemptError: one vote attempt failed. Always transient: the failure is
//     counted and the attempt is retried after the retry delay. Carries a Kind.
//   - ConfigError: invalid configuration. Fatal to the whole run and reported
//     before any worker starts.
//
// # Usage
//
//	err := errors.NewAttemptError(errors.KindElementNotFound, "checkbox", cause).WithWorker(2)
//
//	if errors.Is(err, errors.ErrElementNotFound) { ... }
//
//	var attemptErr *errors.AttemptError
//	if errors.As(err, &attemptErr) { ... }
//
//	switch errors.KindOf(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind classifies a failed vote attempt.
type Kind string

const (
	// KindNavigationTimeout means the poll page did not load in time.
	KindNavigationTimeout Kind = "navigation_timeout"
	// KindElementNotFound means a required control never appeared.
	KindElementNotFound Kind = "element_not_found"
	// KindStateUnchanged means a control was clicked but did not change state.
	KindStateUnchanged Kind = "state_unchanged"
	// KindAlreadyVoted means the page reported that this browser already voted.
	KindAlreadyVoted Kind = "already_voted"
	// KindEngineCrashed means the browser engine died or disconnected.
	KindEngineCrashed Kind = "engine_crashed"
	// KindUnknown is used for errors that carry no classification.
	KindUnknown Kind = "unknown"
)

// Kinds returns every attempt failure kind in reporting order.
func Kinds() []Kind {
	return []Kind{
		KindNavigationTimeout,
		KindElementNotFound,
		KindStateUnchanged,
		KindAlreadyVoted,
		KindEngineCrashed,
		KindUnknown,
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Setup-related sentinel errors
var (
	// ErrBinaryNotFound indicates that no browser binary could be located.
	ErrBinaryNotFound = New("browser binary not found")
	// ErrPortInUse indicates that the worker's control port is already bound.
	ErrPortInUse = New("control port in use")
	// ErrLaunchFailed indicates that the browser process could not be started.
	ErrLaunchFailed = New("browser launch failed")
	// ErrSessionClosed indicates an operation on a session that was closed.
	ErrSessionClosed = New("session closed")
)

// Attempt-related sentinel errors, one per Kind.
var (
	ErrNavigationTimeout = New("navigation timed out")
	ErrElementNotFound   = New("element not found")
	ErrStateUnchanged    = New("element state unchanged")
	ErrAlreadyVoted      = New("already voted")
	ErrEngineCrashed     = New("browser engine crashed")
	// ErrInterrupted indicates that an attempt stopped before submitting because
	// the worker was asked to stop. Interrupted attempts are not counted.
	ErrInterrupted = New("attempt interrupted")
)

// Configuration sentinel errors
var (
	// ErrInvalidWorkerCount indicates a worker count outside the supported range.
	ErrInvalidWorkerCount = New("invalid worker count")
	// ErrInvalidConfig indicates that configuration validation failed.
	ErrInvalidConfig = New("invalid configuration")
)

func kindSentinel(k Kind) error {
	switch k {
	case KindNavigationTimeout:
		return ErrNavigationTimeout
	case KindElementNotFound:
		return ErrElementNotFound
	case KindStateUnchanged:
		return ErrStateUnchanged
	case KindAlreadyVoted:
		return ErrAlreadyVoted
	case KindEngineCrashed:
		return ErrEngineCrashed
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RunnerError is the base interface for all pollrunner errors.
type RunnerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func formatWithContext(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// SetupError
// -----------------------------------------------------------------------------

// SetupError reports that a worker's session could not be opened.
//
// Example:
//
//	err := errors.NewSetupError("launch browser", errors.ErrPortInUse).WithWorker(2).WithPort(9224)
//	fmt.Println(err) // "setup error [worker=2, port=9224]: launch browser: control port in use"
type SetupError struct {
	baseError
	Worker     int
	Port       int
	ProfileDir string
}

// NewSetupError creates a new SetupError.
func NewSetupError(message string, cause error) *SetupError {
	return &SetupError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithWorker adds the worker index to the error context.
func (e *SetupError) WithWorker(index int) *SetupError {
	e.Worker = index
	return e
}

// WithPort adds the control port to the error context.
func (e *SetupError) WithPort(port int) *SetupError {
	e.Port = port
	return e
}

// WithProfileDir adds the profile directory to the error context.
func (e *SetupError) WithProfileDir(dir string) *SetupError {
	e.ProfileDir = dir
	return e
}

// Error returns the formatted error message.
func (e *SetupError) Error() string {
	var parts []string
	if e.Worker > 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.Worker))
	}
	if e.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", e.Port))
	}
	if e.ProfileDir != "" {
		parts = append(parts, fmt.Sprintf("profile=%s", e.ProfileDir))
	}
	return formatWithContext("setup error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SetupError) Is(target error) bool {
	if _, ok := target.(*SetupError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// AttemptError
// -----------------------------------------------------------------------------

// AttemptError reports one failed vote attempt. It is always retryable.
//
// Example:
//
//	err := errors.NewAttemptError(errors.KindElementNotFound, "vote button", nil).WithWorker(1)
//	fmt.Println(err) // "attempt error [worker=1, kind=element_not_found]: vote button: element not found"
type AttemptError struct {
	baseError
	Kind   Kind
	Worker int
}

// NewAttemptError creates a new AttemptError. When cause is nil the sentinel
// for kind is used so that errors.Is matches by kind.
func NewAttemptError(kind Kind, step string, cause error) *AttemptError {
	if cause == nil {
		cause = kindSentinel(kind)
	}
	severity := SeverityWarning
	if kind == KindEngineCrashed {
		severity = SeverityError
	}
	return &AttemptError{
		baseError: baseError{
			message:    step,
			cause:      cause,
			severity:   severity,
			retryable:  true,
			userFacing: true,
		},
		Kind: kind,
	}
}

// WithWorker adds the worker index to the error context.
func (e *AttemptError) WithWorker(index int) *AttemptError {
	e.Worker = index
	return e
}

// Step returns the attempt step that failed.
func (e *AttemptError) Step() string {
	return e.message
}

// Error returns the formatted error message.
func (e *AttemptError) Error() string {
	var parts []string
	if e.Worker > 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.Worker))
	}
	parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	return formatWithContext("attempt error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *AttemptError) Is(target error) bool {
	if _, ok := target.(*AttemptError); ok {
		return true
	}
	if s := kindSentinel(e.Kind); s != nil && target == s {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ConfigError
// -----------------------------------------------------------------------------

// ConfigError reports invalid configuration. It is fatal to the run.
//
// Example:
//
//	err := errors.NewConfigError("worker count out of range").WithField("pool.workers").WithValue(12)
type ConfigError struct {
	baseError
	Field string
	Value any
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ConfigError) WithValue(value any) *ConfigError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ConfigError) WithCause(cause error) *ConfigError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("config error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	if target == ErrInvalidConfig {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.IsRetryable()
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RunnerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var runnerErr RunnerError
	if As(err, &runnerErr) {
		return runnerErr.Severity()
	}

	return SeverityError
}

// KindOf returns the attempt failure kind carried by err, or KindUnknown.
// Kinds not listed by Kinds are reported as KindUnknown.
func KindOf(err error) Kind {
	var attemptErr *AttemptError
	if As(err, &attemptErr) {
		if slices.Contains(Kinds(), attemptErr.Kind) {
			return attemptErr.Kind
		}
		return KindUnknown
	}
	for _, k := range Kinds() {
		if s := kindSentinel(k); s != nil && Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// IsInterrupted reports whether err means an attempt was abandoned because of
// a stop request.
func IsInterrupted(err error) bool {
	return Is(err, ErrInterrupted)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
