// Package cycle drives one session through repeated vote attempts.
//
// A Loop runs load, select, submit, cooldown over and over until it is
// stopped. Failures are classified, counted and followed by a fixed retry
// delay; the loop never gives up on its own. Counters are written only by the
// loop's goroutine and may be read concurrently by observers.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/pollrunner/internal/config"
	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
	"github.com/Iron-Ham/pollrunner/internal/event"
	"github.com/Iron-Ham/pollrunner/internal/logging"
	"github.com/Iron-Ham/pollrunner/internal/session"
)

// ErrAlreadyRan is returned when Run is called on a loop that has run before.
var ErrAlreadyRan = errors.New("cycle loop already ran")

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the loop timings.
type Config struct {
	// Cooldown is the wait after a successful attempt.
	Cooldown time.Duration
	// RetryDelay is the wait after a failed attempt.
	RetryDelay time.Duration
	// StuckThreshold flags the worker as stuck after this many consecutive
	// failures. 0 disables the flag.
	StuckThreshold int64
}

// ConfigFrom converts the pool section of the application config.
func ConfigFrom(p config.PoolConfig) Config {
	return Config{
		Cooldown:       p.Cooldown,
		RetryDelay:     p.RetryDelay,
		StuckThreshold: int64(p.StuckThreshold),
	}
}

// Loop owns one session for its whole life and runs attempts against it.
type Loop struct {
	sess   session.Session
	cfg    Config
	bus    *event.Bus
	logger *logging.Logger

	state   atomic.Int32
	started atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	successes   atomic.Int64
	failures    atomic.Int64
	consecutive atomic.Int64
	byKind      map[apperrors.Kind]*atomic.Int64
	lastError   atomic.Pointer[string]
}

// New creates a Loop for sess. bus and logger may be nil.
func New(sess session.Session, cfg Config, bus *event.Bus, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NopLogger()
	}
	byKind := make(map[apperrors.Kind]*atomic.Int64, len(apperrors.Kinds()))
	for _, k := range apperrors.Kinds() {
		byKind[k] = new(atomic.Int64)
	}
	return &Loop{
		sess:   sess,
		cfg:    cfg,
		bus:    bus,
		logger: logger.WithWorker(sess.Index()),
		byKind: byKind,
	}
}

// Index returns the worker index of the loop's session.
func (l *Loop) Index() int { return l.sess.Index() }

// State returns the loop's lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Successes returns the number of submitted votes so far.
func (l *Loop) Successes() int64 { return l.successes.Load() }

// Failures returns the number of failed attempts so far.
func (l *Loop) Failures() int64 { return l.failures.Load() }

// ConsecutiveFailures returns the length of the current failure streak.
func (l *Loop) ConsecutiveFailures() int64 { return l.consecutive.Load() }

// Run executes attempts until ctx is cancelled or Stop is called. The
// session must already be open. Run returns nil on a normal stop and
// ErrAlreadyRan if the loop was used before.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	l.cancel = cancel
	if l.stopped {
		cancel()
	}
	l.mu.Unlock()

	l.state.Store(int32(StateRunning))
	stopWatch := context.AfterFunc(runCtx, func() {
		l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	})
	defer stopWatch()
	defer l.state.Store(int32(StateStopped))

	l.logger.Debug("cycle loop running",
		"cooldown", l.cfg.Cooldown.String(),
		"retry_delay", l.cfg.RetryDelay.String(),
	)

	for runCtx.Err() == nil {
		wait := l.attempt(runCtx)
		if !sleep(runCtx, wait) {
			break
		}
	}

	l.logger.Debug("cycle loop stopped",
		"successes", l.successes.Load(),
		"failures", l.failures.Load(),
	)
	return nil
}

// Stop asks the loop to stop. A pending cooldown or retry wait ends at once;
// an attempt that already began submitting finishes first. Safe to call
// before Run and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// attempt runs one attempt, updates the counters and returns how long to
// wait before the next one.
func (l *Loop) attempt(ctx context.Context) time.Duration {
	idx := l.sess.Index()
	start := time.Now()
	err := l.runAttempt(ctx)
	elapsed := time.Since(start)

	if err == nil {
		n := l.successes.Add(1)
		l.consecutive.Store(0)
		l.logger.Info("vote submitted",
			"successes", n,
			"duration_ms", elapsed.Milliseconds(),
		)
		l.bus.Publish(event.NewAttemptSucceededEvent(idx, n, elapsed))
		return l.cfg.Cooldown
	}

	if apperrors.IsInterrupted(err) && ctx.Err() != nil {
		l.logger.Debug("attempt interrupted by stop", "error", err.Error())
		return 0
	}

	kind := apperrors.KindOf(err)
	counter, ok := l.byKind[kind]
	if !ok {
		kind = apperrors.KindUnknown
		counter = l.byKind[kind]
	}
	n := l.failures.Add(1)
	counter.Add(1)
	streak := l.consecutive.Add(1)
	msg := err.Error()
	l.lastError.Store(&msg)

	l.logger.Warn("attempt failed",
		"kind", string(kind),
		"error", msg,
		"failures", n,
		"consecutive_failures", streak,
	)
	l.bus.Publish(event.NewAttemptFailedEvent(idx, err, n, streak))

	if l.cfg.StuckThreshold > 0 && streak == l.cfg.StuckThreshold {
		l.logger.Warn("worker appears stuck, still retrying",
			"consecutive_failures", streak,
			"last_kind", string(kind),
		)
		l.bus.Publish(event.NewWorkerStuckEvent(idx, streak))
	}
	return l.cfg.RetryDelay
}

// runAttempt calls the session, turning a panic into an engine crash so one
// bad attempt cannot take the worker down.
func (l *Loop) runAttempt(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewAttemptError(apperrors.KindEngineCrashed, "attempt panicked", fmt.Errorf("panic: %v", r)).
				WithWorker(l.sess.Index())
		}
	}()
	return l.sess.RunAttempt(ctx)
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats is a point-in-time view of a loop's counters.
type Stats struct {
	Worker              int
	State               State
	SessionState        session.State
	Successes           int64
	Failures            int64
	ConsecutiveFailures int64
	Stuck               bool
	FailuresByKind      map[apperrors.Kind]int64
	LastError           string
}

// Stats returns the current counters. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	st := Stats{
		Worker:              l.sess.Index(),
		State:               l.State(),
		SessionState:        l.sess.State(),
		Successes:           l.successes.Load(),
		Failures:            l.failures.Load(),
		ConsecutiveFailures: l.consecutive.Load(),
		FailuresByKind:      make(map[apperrors.Kind]int64),
	}
	st.Stuck = l.cfg.StuckThreshold > 0 && st.ConsecutiveFailures >= l.cfg.StuckThreshold
	for k, c := range l.byKind {
		if n := c.Load(); n > 0 {
			st.FailuresByKind[k] = n
		}
	}
	if msg := l.lastError.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}
