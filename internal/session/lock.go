package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/pollrunner/internal/logging"
)

// LockFileName is the name of the lock file within a profile directory
const LockFileName = "pollrunner.lock"

// ErrProfileLocked is returned when another live process is using the profile directory
var ErrProfileLocked = errors.New("profile directory is locked by another process")

// ProfileLock marks a profile directory as in use by this process.
// Two browsers sharing a profile corrupt each other's state, so a worker
// holds the lock for as long as its session is open.
type ProfileLock struct {
	Worker    int       `json:"worker"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// AcquireProfileLock creates the profile directory if needed and takes its lock.
// A lock left behind by a dead process is removed. The logger may be nil.
func AcquireProfileLock(profileDir string, worker int, logger *logging.Logger) (*ProfileLock, error) {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	lockPath := filepath.Join(profileDir, LockFileName)

	if existing, err := ReadProfileLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			return nil, fmt.Errorf("%w: worker %d of PID %d on %s", ErrProfileLocked, existing.Worker, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale profile lock cleaned",
				"profile_dir", profileDir,
				"old_pid", existing.PID,
			)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &ProfileLock{
		Worker:    worker,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly when another process got here first
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrProfileLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	if logger != nil {
		logger.Debug("profile lock acquired", "profile_dir", profileDir)
	}
	return lock, nil
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times and on a nil lock.
func (l *ProfileLock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadProfileLock(l.lockFile)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID || existing.Worker != l.Worker {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("profile lock released", "profile_dir", filepath.Dir(l.lockFile))
	}
	return nil
}

// ReadProfileLock reads a lock file.
func ReadProfileLock(lockPath string) (*ProfileLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock ProfileLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without affecting the process
	return process.Signal(syscall.Signal(0)) == nil
}
