package event

import (
	"time"

	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWorkerStarted     = "worker.started"
	TypeWorkerSetupFailed = "worker.setup_failed"
	TypeWorkerStopped     = "worker.stopped"
	TypeWorkerStuck       = "worker.stuck"
	TypeAttemptSucceeded  = "attempt.succeeded"
	TypeAttemptFailed     = "attempt.failed"
	TypePoolStopping      = "pool.stopping"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// WorkerStartedEvent is emitted once a worker's session opened and its loop
// is about to run.
type WorkerStartedEvent struct {
	baseEvent
	Worker     int
	Port       int
	ProfileDir string
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(worker, port int, profileDir string) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent:  newBaseEvent(TypeWorkerStarted),
		Worker:     worker,
		Port:       port,
		ProfileDir: profileDir,
	}
}

// WorkerSetupFailedEvent is emitted when a worker's session could not open.
// The worker takes no further part in the run.
type WorkerSetupFailedEvent struct {
	baseEvent
	Worker int
	Err    error
}

// NewWorkerSetupFailedEvent creates a WorkerSetupFailedEvent.
func NewWorkerSetupFailedEvent(worker int, err error) WorkerSetupFailedEvent {
	return WorkerSetupFailedEvent{
		baseEvent: newBaseEvent(TypeWorkerSetupFailed),
		Worker:    worker,
		Err:       err,
	}
}

// WorkerStoppedEvent is emitted after a worker's session closed.
type WorkerStoppedEvent struct {
	baseEvent
	Worker    int
	Successes int64
	Failures  int64
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(worker int, successes, failures int64) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent: newBaseEvent(TypeWorkerStopped),
		Worker:    worker,
		Successes: successes,
		Failures:  failures,
	}
}

// WorkerStuckEvent is emitted when a worker's consecutive failures first reach
// the stuck threshold. The worker keeps retrying.
type WorkerStuckEvent struct {
	baseEvent
	Worker              int
	ConsecutiveFailures int64
}

// NewWorkerStuckEvent creates a WorkerStuckEvent.
func NewWorkerStuckEvent(worker int, consecutive int64) WorkerStuckEvent {
	return WorkerStuckEvent{
		baseEvent:           newBaseEvent(TypeWorkerStuck),
		Worker:              worker,
		ConsecutiveFailures: consecutive,
	}
}

// AttemptSucceededEvent is emitted after a vote was submitted.
type AttemptSucceededEvent struct {
	baseEvent
	Worker    int
	Successes int64 // worker total including this attempt
	Duration  time.Duration
}

// NewAttemptSucceededEvent creates an AttemptSucceededEvent.
func NewAttemptSucceededEvent(worker int, successes int64, d time.Duration) AttemptSucceededEvent {
	return AttemptSucceededEvent{
		baseEvent: newBaseEvent(TypeAttemptSucceeded),
		Worker:    worker,
		Successes: successes,
		Duration:  d,
	}
}

// AttemptFailedEvent is emitted after a classified attempt failure.
type AttemptFailedEvent struct {
	baseEvent
	Worker              int
	Kind                apperrors.Kind
	Err                 error
	Failures            int64 // worker total including this attempt
	ConsecutiveFailures int64
}

// NewAttemptFailedEvent creates an AttemptFailedEvent.
func NewAttemptFailedEvent(worker int, err error, failures, consecutive int64) AttemptFailedEvent {
	return AttemptFailedEvent{
		baseEvent:           newBaseEvent(TypeAttemptFailed),
		Worker:              worker,
		Kind:                apperrors.KindOf(err),
		Err:                 err,
		Failures:            failures,
		ConsecutiveFailures: consecutive,
	}
}

// PoolStoppingEvent is emitted once when the pool begins shutting down.
type PoolStoppingEvent struct {
	baseEvent
	Reason string
}

// NewPoolStoppingEvent creates a PoolStoppingEvent.
func NewPoolStoppingEvent(reason string) PoolStoppingEvent {
	return PoolStoppingEvent{baseEvent: newBaseEvent(TypePoolStopping), Reason: reason}
}
