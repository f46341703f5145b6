// Package testutil provides test doubles for pollrunner tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
	"github.com/Iron-Ham/pollrunner/internal/session"
)

// FakeSession is a scripted session.Session. Each RunAttempt consumes the next
// scripted outcome (nil means success). Once the script is exhausted the
// session parks in RunAttempt until the context is cancelled and reports
// an interrupted attempt, which cycle loops do not count.
type FakeSession struct {
	iso session.Isolation

	// OpenErr is returned by Open when set.
	OpenErr error
	// CloseDelay makes Close take this long before reporting closed.
	CloseDelay time.Duration
	// AttemptDelay makes every scripted attempt take this long.
	AttemptDelay time.Duration

	mu       sync.Mutex
	script   []error
	attempts int
	opened   bool

	state      atomic.Int32
	closed     atomic.Bool
	closeCount atomic.Int32

	exhausted     chan struct{}
	exhaustedOnce sync.Once
}

// NewFakeSession creates a FakeSession for iso with the given outcomes.
func NewFakeSession(iso session.Isolation, script ...error) *FakeSession {
	return &FakeSession{
		iso:       iso,
		script:    script,
		exhausted: make(chan struct{}),
	}
}

// Successes returns a script of n successful attempts.
func Successes(n int) []error {
	return make([]error, n)
}

// Failure returns a classified attempt failure of the given kind.
func Failure(kind apperrors.Kind) error {
	return apperrors.NewAttemptError(kind, "scripted", nil)
}

// Index implements session.Session.
func (f *FakeSession) Index() int { return f.iso.Index }

// Isolation returns the isolation the session was built with.
func (f *FakeSession) Isolation() session.Isolation { return f.iso }

// Open implements session.Session.
func (f *FakeSession) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		f.state.Store(int32(session.StateFailed))
		return f.OpenErr
	}
	f.opened = true
	f.state.Store(int32(session.StateIdle))
	return nil
}

// RunAttempt implements session.Session.
func (f *FakeSession) RunAttempt(ctx context.Context) error {
	if f.closed.Load() {
		return apperrors.ErrSessionClosed
	}
	if ctx.Err() != nil {
		return apperrors.Wrap(apperrors.ErrInterrupted, "before navigate")
	}

	f.mu.Lock()
	if f.attempts < len(f.script) {
		outcome := f.script[f.attempts]
		f.attempts++
		delay := f.AttemptDelay
		f.mu.Unlock()

		f.state.Store(int32(session.StateActing))
		if delay > 0 {
			time.Sleep(delay)
		}
		if outcome != nil {
			f.state.Store(int32(session.StateFailed))
		} else {
			f.state.Store(int32(session.StateIdle))
		}
		return outcome
	}
	f.mu.Unlock()

	f.state.Store(int32(session.StateNavigating))
	f.exhaustedOnce.Do(func() { close(f.exhausted) })
	<-ctx.Done()
	f.state.Store(int32(session.StateIdle))
	return apperrors.Wrap(apperrors.ErrInterrupted, "script exhausted")
}

// Close implements session.Session.
func (f *FakeSession) Close() error {
	f.closeCount.Add(1)
	if f.closed.Load() {
		return nil
	}
	if f.CloseDelay > 0 {
		time.Sleep(f.CloseDelay)
	}
	f.state.Store(int32(session.StateClosed))
	f.closed.Store(true)
	return nil
}

// State implements session.Session.
func (f *FakeSession) State() session.State {
	return session.State(f.state.Load())
}

// Attempts returns how many scripted outcomes have been consumed.
func (f *FakeSession) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Opened reports whether Open succeeded.
func (f *FakeSession) Opened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Closed reports whether Close has completed.
func (f *FakeSession) Closed() bool { return f.closed.Load() }

// CloseCount returns how many times Close was called.
func (f *FakeSession) CloseCount() int { return int(f.closeCount.Load()) }

// Exhausted is closed once every scripted outcome has been consumed and the
// session is parked waiting for cancellation.
func (f *FakeSession) Exhausted() <-chan struct{} { return f.exhausted }

// FakeFactory builds FakeSessions and remembers them by worker index.
type FakeFactory struct {
	build func(iso session.Isolation) *FakeSession

	mu       sync.Mutex
	sessions map[int]*FakeSession
	order    []int
}

// NewFakeFactory creates a FakeFactory. build decides each worker's script.
func NewFakeFactory(build func(iso session.Isolation) *FakeSession) *FakeFactory {
	return &FakeFactory{
		build:    build,
		sessions: make(map[int]*FakeSession),
	}
}

// New implements session.Factory.
func (f *FakeFactory) New(iso session.Isolation) (session.Session, error) {
	s := f.build(iso)
	f.mu.Lock()
	f.sessions[iso.Index] = s
	f.order = append(f.order, iso.Index)
	f.mu.Unlock()
	return s, nil
}

// Session returns the session built for index, or nil.
func (f *FakeFactory) Session(index int) *FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[index]
}

// Sessions returns every session built, in build order.
func (f *FakeFactory) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeSession, 0, len(f.order))
	for _, idx := range f.order {
		out = append(out, f.sessions[idx])
	}
	return out
}

// WaitExhausted blocks until every given session has consumed its script.
func WaitExhausted(t testing.TB, timeout time.Duration, sessions ...*FakeSession) {
	t.Helper()
	deadline := time.After(timeout)
	for _, s := range sessions {
		select {
		case <-s.Exhausted():
		case <-deadline:
			t.Fatalf("worker %d did not exhaust its script within %v (attempts=%d)", s.Index(), timeout, s.Attempts())
		}
	}
}
