// Package event carries worker lifecycle and attempt outcomes from the pool to
// observers (progress printer, metrics, dashboard) without the pool knowing
// who listens.
//
// The [Bus] is synchronous: Publish runs every handler on the publishing
// goroutine before returning. Workers publish from their own goroutines, so
// handlers must be safe for concurrent use and must not block. A panicking
// handler is recovered and logged; it never takes a worker down.
//
// Event types follow the "category.action" convention:
//
//	worker.started        WorkerStartedEvent
//	worker.setup_failed   WorkerSetupFailedEvent
//	worker.stopped        WorkerStoppedEvent
//	worker.stuck          WorkerStuckEvent
//	attempt.succeeded     AttemptSucceededEvent
//	attempt.failed        AttemptFailedEvent
//	pool.stopping         PoolStoppingEvent
package event
