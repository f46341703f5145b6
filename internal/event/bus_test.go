package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "github.com/Iron-Ham/pollrunner/internal/errors"
)

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeWorkerStarted, func(e Event) {
		received = e
	})

	bus.Publish(NewWorkerStartedEvent(2, 9224, "/tmp/p2"))

	started, ok := received.(WorkerStartedEvent)
	if !ok {
		t.Fatalf("handler received %T, want WorkerStartedEvent", received)
	}
	if started.Worker != 2 || started.Port != 9224 {
		t.Errorf("got worker=%d port=%d", started.Worker, started.Port)
	}
	if started.Timestamp().IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestBus_OnlyMatchingHandlersRun(t *testing.T) {
	bus := NewBus(nil)

	var failed, succeeded int
	bus.Subscribe(TypeAttemptFailed, func(Event) { failed++ })
	bus.Subscribe(TypeAttemptSucceeded, func(Event) { succeeded++ })

	bus.Publish(NewAttemptSucceededEvent(1, 1, 0))

	if succeeded != 1 || failed != 0 {
		t.Errorf("succeeded=%d failed=%d, want 1 and 0", succeeded, failed)
	}
}

func TestBus_WildcardRunsAfterSpecific(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypePoolStopping, func(Event) { order = append(order, "specific") })

	bus.Publish(NewPoolStoppingEvent("signal"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("order = %v, want [specific wildcard]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(TypeWorkerStopped, func(Event) { calls++ })
	keep := bus.Subscribe(TypeWorkerStopped, func(Event) {})

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for a known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe returned true for an already removed ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	bus.Publish(NewWorkerStoppedEvent(1, 0, 0))
	if calls != 0 {
		t.Error("removed handler was called")
	}
	_ = keep
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(TypeWorkerStuck, func(Event) { panic("boom") })
	bus.Subscribe(TypeWorkerStuck, func(Event) { delivered = true })

	bus.Publish(NewWorkerStuckEvent(1, 10))

	if !delivered {
		t.Error("second handler should still receive the event")
	}
}

func TestBus_NilBusDropsEvents(t *testing.T) {
	var bus *Bus
	bus.Publish(NewPoolStoppingEvent("test"))
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var count atomic.Int64
	bus.Subscribe(TypeAttemptFailed, func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for w := 1; w <= 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish(NewAttemptFailedEvent(worker, apperrors.ErrElementNotFound, int64(i+1), int64(i+1)))
			}
		}(w)
	}
	wg.Wait()

	if count.Load() != 800 {
		t.Errorf("count = %d, want 800", count.Load())
	}
}

func TestNewAttemptFailedEvent_ClassifiesKind(t *testing.T) {
	err := apperrors.NewAttemptError(apperrors.KindAlreadyVoted, "submit", nil)
	e := NewAttemptFailedEvent(3, err, 4, 2)

	if e.Kind != apperrors.KindAlreadyVoted {
		t.Errorf("Kind = %q, want %q", e.Kind, apperrors.KindAlreadyVoted)
	}
	if !errors.Is(e.Err, apperrors.ErrAlreadyVoted) {
		t.Error("Err should wrap ErrAlreadyVoted")
	}
}
