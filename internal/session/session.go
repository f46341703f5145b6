// Package session defines the contract between a cycle loop and the browser
// context it drives, plus the per-worker isolation every implementation uses.
package session

import (
	"context"
	"fmt"
	"path/filepath"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateIdle means the session is open and waiting for the next attempt.
	StateIdle State = iota

	// StateNavigating means the session is loading the poll page.
	StateNavigating

	// StateActing means the session is selecting and submitting.
	StateActing

	// StateFailed means the last operation failed. The session may still be
	// usable for another attempt.
	StateFailed

	// StateClosed means Close has been called. Terminal.
	StateClosed
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateActing:
		return "acting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one isolated browser context that can submit a single vote per
// attempt. A Session is owned by exactly one cycle loop; apart from Index and
// State its methods are not safe for concurrent use.
type Session interface {
	// Index returns the 1-based worker index the session was created for.
	Index() int

	// Open establishes the browser context. Failures are SetupErrors.
	Open(ctx context.Context) error

	// RunAttempt performs load, select, submit and confirm once.
	// Failures are AttemptErrors. Cancelling ctx before the submit step
	// returns an error matching ErrInterrupted; once submit has begun the
	// attempt runs to completion.
	RunAttempt(ctx context.Context) error

	// Close releases the browser context. Idempotent and safe after any failure.
	Close() error

	// State returns the current lifecycle state.
	State() State
}

// Factory builds the Session for one worker.
type Factory func(iso Isolation) (Session, error)

// Isolation is the per-worker resources a Session must not share.
type Isolation struct {
	Index      int    `json:"index" yaml:"index"`
	ProfileDir string `json:"profile_dir" yaml:"profile_dir"`
	Port       int    `json:"port" yaml:"port"`
}

// String returns a short description for logs.
func (i Isolation) String() string {
	return fmt.Sprintf("worker %d (port %d, profile %s)", i.Index, i.Port, i.ProfileDir)
}

// ProfileDirName returns the profile directory name for a worker index.
func ProfileDirName(index int) string {
	return fmt.Sprintf("pollrunner_profile_%d", index)
}

// IsolationFor derives the isolation for a worker index. Distinct indices
// always yield distinct profile directories and ports.
func IsolationFor(index int, profileRoot string, basePort int) Isolation {
	return Isolation{
		Index:      index,
		ProfileDir: filepath.Join(profileRoot, ProfileDirName(index)),
		Port:       basePort + index,
	}
}
