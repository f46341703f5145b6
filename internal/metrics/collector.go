// Package metrics exposes run counters to Prometheus and serves a small
// status API alongside them.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/pollrunner/internal/event"
)

const namespace = "pollrunner"

// Collector turns bus events into Prometheus metrics. Each Collector owns its
// own registry so several runs (and tests) never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      prometheus.Histogram
	setupFailures prometheus.Counter
	running       prometheus.Gauge
	stuck         prometheus.Gauge

	mu      sync.Mutex
	started map[int]bool
	stuckBy map[int]bool
}

// NewCollector creates a Collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Vote attempts by worker and result.",
		}, []string{"worker", "result"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_failures_total",
			Help:      "Failed vote attempts by worker and error kind.",
		}, []string{"worker", "kind"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of successful vote attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		}),
		setupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_setup_failures_total",
			Help:      "Workers whose browser session could not be opened.",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_running",
			Help:      "Workers whose session is open and whose loop is running.",
		}),
		stuck: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_stuck",
			Help:      "Workers currently past the consecutive failure threshold.",
		}),
		started: make(map[int]bool),
		stuckBy: make(map[int]bool),
	}
}

// Registry returns the registry holding this collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the collector to bus. The returned function removes the
// subscription.
func (c *Collector) Attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(c.Handle)
	return func() { bus.Unsubscribe(id) }
}

// Handle records a single event.
func (c *Collector) Handle(e event.Event) {
	switch ev := e.(type) {
	case event.WorkerStartedEvent:
		c.mu.Lock()
		if !c.started[ev.Worker] {
			c.started[ev.Worker] = true
			c.running.Inc()
		}
		c.mu.Unlock()

	case event.WorkerSetupFailedEvent:
		c.setupFailures.Inc()

	case event.WorkerStoppedEvent:
		c.mu.Lock()
		if c.started[ev.Worker] {
			delete(c.started, ev.Worker)
			c.running.Dec()
		}
		c.clearStuck(ev.Worker)
		c.mu.Unlock()

	case event.AttemptSucceededEvent:
		c.attempts.WithLabelValues(workerLabel(ev.Worker), "success").Inc()
		c.duration.Observe(ev.Duration.Seconds())
		c.mu.Lock()
		c.clearStuck(ev.Worker)
		c.mu.Unlock()

	case event.AttemptFailedEvent:
		w := workerLabel(ev.Worker)
		c.attempts.WithLabelValues(w, "failure").Inc()
		c.failures.WithLabelValues(w, string(ev.Kind)).Inc()

	case event.WorkerStuckEvent:
		c.mu.Lock()
		if !c.stuckBy[ev.Worker] {
			c.stuckBy[ev.Worker] = true
			c.stuck.Inc()
		}
		c.mu.Unlock()
	}
}

// clearStuck must be called with c.mu held.
func (c *Collector) clearStuck(worker int) {
	if c.stuckBy[worker] {
		delete(c.stuckBy, worker)
		c.stuck.Dec()
	}
}

func workerLabel(index int) string {
	return strconv.Itoa(index)
}
