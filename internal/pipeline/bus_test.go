package pipeline

import (
	"testing"
	"time"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/stage"
)

type recordingMirror struct {
	events []ObjectCreated
}

func (m *recordingMirror) Publish(e ObjectCreated) { m.events = append(m.events, e) }

func TestBusDispatchesByPrefix(t *testing.T) {
	bus := NewBus()
	var pending, parsed []string
	bus.SubscribePrefix(stage.Pending, func(e ObjectCreated) error {
		pending = append(pending, e.Key)
		return nil
	})
	bus.SubscribePrefix(stage.ParsedOutputs, func(e ObjectCreated) error {
		parsed = append(parsed, e.Key)
		return nil
	})

	if err := bus.Publish(ObjectCreated{Key: stage.Pending + "bill.pdf"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pending) != 1 || len(parsed) != 0 {
		t.Errorf("dispatch = %v / %v", pending, parsed)
	}
}

func TestBusReturnsFirstHandlerError(t *testing.T) {
	bus := NewBus()
	first := pe.New(pe.KindTransport, "first")
	var secondRan bool
	bus.SubscribePrefix(stage.Pending, func(ObjectCreated) error { return first })
	bus.SubscribePrefix(stage.Pending, func(ObjectCreated) error {
		secondRan = true
		return pe.New(pe.KindInternal, "second")
	})

	err := bus.Publish(ObjectCreated{Key: stage.Pending + "bill.pdf"})
	if err != first {
		t.Errorf("err = %v", err)
	}
	// a failing handler does not stop later subscribers
	if !secondRan {
		t.Error("second handler skipped")
	}
}

func TestBusMirrorsEveryEvent(t *testing.T) {
	bus := NewBus()
	m := &recordingMirror{}
	bus.AddMirror(m)
	bus.SubscribePrefix(stage.Pending, func(ObjectCreated) error {
		return pe.New(pe.KindTransport, "boom")
	})

	bus.Publish(ObjectCreated{Key: stage.Pending + "a.pdf"})
	bus.Publish(ObjectCreated{Key: "unmatched/key"})

	// mirrors see everything, matched or not, failed or not
	if len(m.events) != 2 {
		t.Errorf("mirrored %d events", len(m.events))
	}
}

func TestBusIgnoresNilRegistrations(t *testing.T) {
	bus := NewBus()
	bus.SubscribePrefix(stage.Pending, nil)
	bus.AddMirror(nil)
	if err := bus.Publish(ObjectCreated{Key: stage.Pending + "a.pdf"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	var calls int
	h := WithRetry(func(ObjectCreated) error {
		calls++
		if calls < 3 {
			return pe.New(pe.KindTransport, "flaky")
		}
		return nil
	}, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, IsRetryable: pe.IsRetryable}, nil)

	if err := h(ObjectCreated{Key: stage.Pending + "a.pdf"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestWithRetryNonRetryableFailsFast(t *testing.T) {
	dlq := NewDeadLetterQueue()
	var calls int
	h := WithRetry(func(ObjectCreated) error {
		calls++
		return pe.New(pe.KindValidation, "bad input")
	}, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, IsRetryable: pe.IsRetryable}, dlq)

	if err := h(ObjectCreated{Key: stage.Pending + "a.pdf"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried %d times", calls)
	}
	if dlq.Count() != 1 {
		t.Errorf("dlq count = %d", dlq.Count())
	}
}

func TestWithRetryExhaustionLandsInDLQ(t *testing.T) {
	dlq := NewDeadLetterQueue()
	var calls int
	h := WithRetry(func(ObjectCreated) error {
		calls++
		return pe.New(pe.KindTransport, "down")
	}, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, IsRetryable: pe.IsRetryable}, dlq)

	err := h(ObjectCreated{Key: stage.Pending + "a.pdf"})
	if err == nil || calls != 3 {
		t.Fatalf("err = %v after %d calls", err, calls)
	}

	failed := dlq.GetAll()
	if len(failed) != 1 || failed[0].Event.Key != stage.Pending+"a.pdf" {
		t.Errorf("dlq = %+v", failed)
	}
	dlq.Clear()
	if dlq.Count() != 0 {
		t.Error("clear left events behind")
	}
}
