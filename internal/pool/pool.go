// Package pool runs a fixed set of workers, each a cycle loop bound to its
// own session, and stops them all together.
//
// Lifecycle:
//
//	p, err := pool.New(pool.OptionsFrom(cfg, bus, logger), factory)
//	if err != nil {
//	    return err // bad worker count, nothing started
//	}
//	p.Start(ctx)
//	<-interrupt
//	rep := p.Stop() // blocks until every session is closed
//
// Workers share nothing but the stop signal and the event bus. A worker
// whose session fails to open is reported as failed to start; the others
// keep running. Stop is a single cancellation broadcast followed by a join.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/pollrunner/internal/config"
	"github.com/Iron-Ham/pollrunner/internal/cycle"
	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
	"github.com/Iron-Ham/pollrunner/internal/event"
	"github.com/Iron-Ham/pollrunner/internal/logging"
	"github.com/Iron-Ham/pollrunner/internal/report"
	"github.com/Iron-Ham/pollrunner/internal/session"
)

var (
	// ErrAlreadyStarted is returned by Start on a pool that was started before.
	ErrAlreadyStarted = errors.New("pool already started")
	// ErrStopped is returned by Start on a pool that was stopped.
	ErrStopped = errors.New("pool stopped")
)

// Options configures a Pool.
type Options struct {
	// Workers is the number of workers, 1 through config.MaxWorkers.
	Workers int
	// ProfileRoot is the parent of every worker's profile directory.
	ProfileRoot string
	// BasePort is added to the worker index to get its control port.
	BasePort int
	// Loop holds the cycle timings shared by every worker.
	Loop cycle.Config
	// RunID identifies this run in logs and the report. Generated when empty.
	RunID string
	// Bus receives worker and attempt events. Optional.
	Bus *event.Bus
	// Logger is the parent logger. Optional.
	Logger *logging.Logger
}

// OptionsFrom builds Options from the application config.
func OptionsFrom(cfg *config.Config, bus *event.Bus, logger *logging.Logger) Options {
	return Options{
		Workers:     cfg.Pool.Workers,
		ProfileRoot: cfg.Browser.ResolveProfileRoot(),
		BasePort:    cfg.Browser.BasePort,
		Loop:        cycle.ConfigFrom(cfg.Pool),
		Bus:         bus,
		Logger:      logger,
	}
}

// worker phases
const (
	phasePending int32 = iota
	phaseOpening
	phaseRunning
	phaseFailed
	phaseStopped
)

type worker struct {
	iso   session.Isolation
	sess  session.Session
	loop  *cycle.Loop
	phase atomic.Int32

	// written once by the worker goroutine before phaseFailed is stored
	setupErr error
}

// Pool owns N workers for one run.
type Pool struct {
	opts    Options
	factory session.Factory
	runID   string
	logger  *logging.Logger
	bus     *event.Bus

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	workers   []*worker
	cancel    context.CancelFunc

	wg       conc.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	report   *report.Report
}

// New validates opts and creates a Pool. Nothing is started. A worker count
// outside 1..config.MaxWorkers is a ConfigError.
func New(opts Options, factory session.Factory) (*Pool, error) {
	if verr := config.ValidateWorkers(opts.Workers); verr != nil {
		return nil, apperrors.NewConfigError(verr.Message).
			WithField(verr.Field).
			WithValue(opts.Workers).
			WithCause(apperrors.ErrInvalidWorkerCount)
	}
	if factory == nil {
		return nil, apperrors.NewConfigError("session factory is required")
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Pool{
		opts:    opts,
		factory: factory,
		runID:   runID,
		logger:  logger.WithRun(runID),
		bus:     opts.Bus,
		done:    make(chan struct{}),
	}, nil
}

// RunID returns the identifier of this run.
func (p *Pool) RunID() string { return p.runID }

// Size returns the configured number of workers.
func (p *Pool) Size() int { return p.opts.Workers }

// Start builds one session per worker and launches every worker. It returns
// once all workers are launched, without waiting for sessions to open.
// Cancelling ctx has the same effect on workers as Stop, but only Stop
// produces the report.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.workers = make([]*worker, 0, p.opts.Workers)
	for i := 1; i <= p.opts.Workers; i++ {
		iso := session.IsolationFor(i, p.opts.ProfileRoot, p.opts.BasePort)
		w := &worker{iso: iso}

		sess, err := p.factory(iso)
		switch {
		case err != nil:
			w.setupErr = apperrors.NewSetupError("create session", err).WithWorker(i).WithPort(iso.Port).WithProfileDir(iso.ProfileDir)
		case sess == nil:
			w.setupErr = apperrors.NewSetupError("create session", errors.New("factory returned no session")).WithWorker(i)
		default:
			w.sess = sess
			w.loop = cycle.New(sess, p.opts.Loop, p.bus, p.logger)
		}
		p.workers = append(p.workers, w)
	}

	p.logger.Info("pool starting",
		"workers", p.opts.Workers,
		"profile_root", p.opts.ProfileRoot,
		"base_port", p.opts.BasePort,
	)

	for _, w := range p.workers {
		p.wg.Go(func() { p.runWorker(runCtx, w) })
	}
	go func() {
		if r := p.wg.WaitAndRecover(); r != nil {
			p.logger.Error("worker goroutine panicked", "panic", fmt.Sprint(r.Value), "stack", string(r.Stack))
		}
		close(p.done)
	}()
	return nil
}

// runWorker opens the worker's session, runs its loop until ctx ends and
// always closes the session.
func (p *Pool) runWorker(ctx context.Context, w *worker) {
	idx := w.iso.Index
	log := p.logger.WithWorker(idx)

	if w.sess == nil {
		w.phase.Store(phaseFailed)
		log.Error("worker failed to start", "error", w.setupErr.Error())
		p.bus.Publish(event.NewWorkerSetupFailedEvent(idx, w.setupErr))
		return
	}

	defer func() {
		if err := w.sess.Close(); err != nil {
			log.Warn("session close failed", "error", err.Error())
		}
		if w.phase.Load() != phaseFailed {
			w.phase.Store(phaseStopped)
		}
		p.bus.Publish(event.NewWorkerStoppedEvent(idx, w.loop.Successes(), w.loop.Failures()))
	}()

	w.phase.Store(phaseOpening)
	if err := w.sess.Open(ctx); err != nil {
		w.setupErr = err
		w.phase.Store(phaseFailed)
		log.Error("worker failed to start", "error", err.Error())
		p.bus.Publish(event.NewWorkerSetupFailedEvent(idx, err))
		return
	}

	w.phase.Store(phaseRunning)
	log.Info("worker started", "port", w.iso.Port, "profile_dir", w.iso.ProfileDir)
	p.bus.Publish(event.NewWorkerStartedEvent(idx, w.iso.Port, w.iso.ProfileDir))

	if err := w.loop.Run(ctx); err != nil {
		log.Error("cycle loop ended with error", "error", err.Error())
	}
}

// Stop cancels every worker at once, waits until every session has closed
// and returns the final report. Later calls return the same report. Stop on
// a pool that was never started returns an empty report.
func (p *Pool) Stop() *report.Report {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		started := p.started
		cancel := p.cancel
		p.mu.Unlock()

		p.logger.Info("pool stopping")
		p.bus.Publish(event.NewPoolStoppingEvent("stop requested"))

		if cancel != nil {
			cancel()
		}
		if started {
			<-p.done
		} else {
			close(p.done)
		}

		p.report = report.New(p.runID, p.startedAt, time.Now(), p.Snapshot())
		p.logger.Info("pool stopped",
			"total_successes", p.report.TotalSuccesses,
			"total_failures", p.report.TotalFailures,
			"elapsed_ms", p.report.Elapsed.Milliseconds(),
		)
	})
	return p.report
}

// Done is closed once every worker has exited, either because the pool was
// stopped or because no worker could start.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Running returns the number of workers whose loop is currently running.
func (p *Pool) Running() int {
	n := 0
	for _, w := range p.snapshotWorkers() {
		if w.phase.Load() == phaseRunning {
			n++
		}
	}
	return n
}

func (p *Pool) snapshotWorkers() []*worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Snapshot returns the live status of every worker. Safe to call at any time
// from any goroutine.
func (p *Pool) Snapshot() []report.Worker {
	workers := p.snapshotWorkers()
	out := make([]report.Worker, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.status())
	}
	return out
}

func (w *worker) status() report.Worker {
	phase := w.phase.Load()
	rw := report.Worker{
		Index:      w.iso.Index,
		Port:       w.iso.Port,
		ProfileDir: w.iso.ProfileDir,
		Started:    phase == phaseRunning || phase == phaseStopped,
		State:      phaseStatus(phase),
	}
	if phase == phaseFailed && w.setupErr != nil {
		rw.SetupError = w.setupErr.Error()
	}
	if w.sess != nil {
		rw.SessionState = w.sess.State().String()
	}
	if w.loop == nil {
		return rw
	}

	st := w.loop.Stats()
	rw.Successes = st.Successes
	rw.Failures = st.Failures
	rw.ConsecutiveFailures = st.ConsecutiveFailures
	rw.Stuck = st.Stuck
	rw.LastError = st.LastError
	if phase == phaseRunning && st.State == cycle.StateStopping {
		rw.State = report.StatusStopping
	}
	if len(st.FailuresByKind) > 0 {
		rw.FailuresByKind = make(map[string]int64, len(st.FailuresByKind))
		for k, n := range st.FailuresByKind {
			rw.FailuresByKind[string(k)] = n
		}
	}
	return rw
}

func phaseStatus(phase int32) string {
	switch phase {
	case phaseOpening:
		return report.StatusStarting
	case phaseRunning:
		return report.StatusRunning
	case phaseFailed:
		return report.StatusFailedToStart
	case phaseStopped:
		return report.StatusStopped
	default:
		return report.StatusPending
	}
}
