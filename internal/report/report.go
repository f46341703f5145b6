// Package report holds the end-of-run summary of a worker pool and renders it
// as text, JSON or YAML.
package report

import (
	"maps"
	"slices"
	"time"
)

// Worker is one worker's line in the report.
type Worker struct {
	Index               int              `json:"index" yaml:"index"`
	Port                int              `json:"port" yaml:"port"`
	ProfileDir          string           `json:"profile_dir" yaml:"profile_dir"`
	Started             bool             `json:"started" yaml:"started"`
	SetupError          string           `json:"setup_error,omitempty" yaml:"setup_error,omitempty"`
	State               string           `json:"state" yaml:"state"`
	SessionState        string           `json:"session_state" yaml:"session_state"`
	Successes           int64            `json:"successes" yaml:"successes"`
	Failures            int64            `json:"failures" yaml:"failures"`
	ConsecutiveFailures int64            `json:"consecutive_failures" yaml:"consecutive_failures"`
	Stuck               bool             `json:"stuck,omitempty" yaml:"stuck,omitempty"`
	FailuresByKind      map[string]int64 `json:"failures_by_kind,omitempty" yaml:"failures_by_kind,omitempty"`
	LastError           string           `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Attempts returns the number of counted attempts.
func (w Worker) Attempts() int64 { return w.Successes + w.Failures }

// Report is the immutable summary produced when a pool stops.
type Report struct {
	RunID          string        `json:"run_id" yaml:"run_id"`
	StartedAt      time.Time     `json:"started_at" yaml:"started_at"`
	StoppedAt      time.Time     `json:"stopped_at" yaml:"stopped_at"`
	Elapsed        time.Duration `json:"-" yaml:"-"`
	ElapsedSeconds float64       `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Workers        []Worker      `json:"workers" yaml:"workers"`
	WorkersStarted int           `json:"workers_started" yaml:"workers_started"`
	TotalSuccesses int64         `json:"total_successes" yaml:"total_successes"`
	TotalFailures  int64         `json:"total_failures" yaml:"total_failures"`
}

// New builds a Report from per-worker entries, computing the totals. The
// entries are copied so later changes by the caller do not leak in.
func New(runID string, startedAt, stoppedAt time.Time, workers []Worker) *Report {
	r := &Report{
		RunID:     runID,
		StartedAt: startedAt,
		StoppedAt: stoppedAt,
		Workers:   make([]Worker, len(workers)),
	}
	if !startedAt.IsZero() && stoppedAt.After(startedAt) {
		r.Elapsed = stoppedAt.Sub(startedAt)
		r.ElapsedSeconds = r.Elapsed.Seconds()
	}

	for i, w := range workers {
		w.FailuresByKind = maps.Clone(w.FailuresByKind)
		r.Workers[i] = w
		r.TotalSuccesses += w.Successes
		r.TotalFailures += w.Failures
		if w.Started {
			r.WorkersStarted++
		}
	}
	slices.SortFunc(r.Workers, func(a, b Worker) int { return a.Index - b.Index })
	return r
}

// Worker returns the entry for a worker index.
func (r *Report) Worker(index int) (Worker, bool) {
	for _, w := range r.Workers {
		if w.Index == index {
			return w, true
		}
	}
	return Worker{}, false
}

// FailedToStart returns the indices of workers whose session never opened.
func (r *Report) FailedToStart() []int {
	var out []int
	for _, w := range r.Workers {
		if !w.Started {
			out = append(out, w.Index)
		}
	}
	return out
}

// StuckWorkers returns the indices of workers that ended on a failure streak
// at or above the stuck threshold.
func (r *Report) StuckWorkers() []int {
	var out []int
	for _, w := range r.Workers {
		if w.Stuck {
			out = append(out, w.Index)
		}
	}
	return out
}

// FailuresByKind sums failure counts across workers.
func (r *Report) FailuresByKind() map[string]int64 {
	out := make(map[string]int64)
	for _, w := range r.Workers {
		for k, n := range w.FailuresByKind {
			out[k] += n
		}
	}
	return out
}

// Worker display statuses.
const (
	StatusPending       = "pending"
	StatusStarting      = "starting"
	StatusRunning       = "running"
	StatusStuck         = "stuck"
	StatusStopping      = "stopping"
	StatusStopped       = "stopped"
	StatusFailedToStart = "failed_to_start"
)
