package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
)

type fakeEntryStore struct {
	entries   map[string]*Entry
	processed []string
	failures  []string
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[string]*Entry)}
}

func (f *fakeEntryStore) TryBegin(ctx context.Context, eventID, eventType, correlationID string, maxAttempts int) (*Entry, bool, error) {
	if e, ok := f.entries[eventID]; ok {
		return e, e.Status == StatusProcessed, nil
	}
	e := &Entry{EventID: eventID, EventType: eventType, CorrelationID: correlationID, MaxAttempts: maxAttempts, Status: StatusFailed}
	f.entries[eventID] = e
	return e, false, nil
}

func (f *fakeEntryStore) MarkProcessed(ctx context.Context, eventID string) error {
	f.processed = append(f.processed, eventID)
	f.entries[eventID].Status = StatusProcessed
	return nil
}

func (f *fakeEntryStore) RecordAttemptFailure(ctx context.Context, eventID, lastErr string) error {
	f.failures = append(f.failures, eventID)
	f.entries[eventID].Attempts++
	return nil
}

type fakeDLQSink struct {
	enqueued []string
}

func (f *fakeDLQSink) Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error {
	f.enqueued = append(f.enqueued, env.EventID)
	return nil
}

func testEnvelope(eventID, eventType string) *envelope.Envelope {
	return &envelope.Envelope{EventID: eventID, EventType: eventType, CorrelationID: "corr-1", Payload: []byte(`{}`)}
}

func TestProcessor_Handle_NewEventDispatchesAndMarksProcessed(t *testing.T) {
	store := newFakeEntryStore()
	registry := NewRegistry()
	called := false
	registry.Register("order.created", func(ctx context.Context, env *envelope.Envelope) error {
		called = true
		return nil
	})
	dlq := &fakeDLQSink{}
	p := NewProcessor(&Store{}, registry, dlq, ProcessorConfig{MaxAttempts: 3})
	p.store = store

	acked := false
	err := p.Handle(context.Background(), Delivery{
		Envelope: testEnvelope("e1", "order.created"),
		Ack:      func() { acked = true },
		Nack:     func(requeue bool) { t.Fatal("should not nack") },
	})

	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if !acked {
		t.Error("expected delivery to be acked")
	}
	if len(store.processed) != 1 || store.processed[0] != "e1" {
		t.Errorf("expected e1 marked processed, got %v", store.processed)
	}
}

func TestProcessor_Handle_DuplicateEventSkipsHandler(t *testing.T) {
	store := newFakeEntryStore()
	store.entries["e1"] = &Entry{EventID: "e1", Status: StatusProcessed}

	registry := NewRegistry()
	registry.Register("order.created", func(ctx context.Context, env *envelope.Envelope) error {
		t.Fatal("handler should not be called for an already-processed event")
		return nil
	})
	p := NewProcessor(&Store{}, registry, &fakeDLQSink{}, ProcessorConfig{MaxAttempts: 3})
	p.store = store

	acked := false
	err := p.Handle(context.Background(), Delivery{
		Envelope: testEnvelope("e1", "order.created"),
		Ack:      func() { acked = true },
		Nack:     func(requeue bool) { t.Fatal("should not nack") },
	})

	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acked {
		t.Error("expected duplicate delivery to be acked")
	}
}

func TestProcessor_Handle_UnknownEventTypeGoesToDLQ(t *testing.T) {
	store := newFakeEntryStore()
	dlq := &fakeDLQSink{}
	p := NewProcessor(&Store{}, NewRegistry(), dlq, ProcessorConfig{MaxAttempts: 3})
	p.store = store

	acked := false
	err := p.Handle(context.Background(), Delivery{
		Envelope: testEnvelope("e2", "unknown.type"),
		Ack:      func() { acked = true },
		Nack:     func(requeue bool) { t.Fatal("should not nack") },
	})

	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acked {
		t.Error("expected unknown-type delivery to be acked after DLQ write")
	}
	if len(dlq.enqueued) != 1 || dlq.enqueued[0] != "e2" {
		t.Errorf("expected e2 sent to DLQ, got %v", dlq.enqueued)
	}
}

func TestProcessor_Handle_RetryableFailureRequeues(t *testing.T) {
	store := newFakeEntryStore()
	registry := NewRegistry()
	registry.Register("order.created", func(ctx context.Context, env *envelope.Envelope) error {
		return apperrors.Transient(errors.New("downstream timeout"), "超时")
	})
	dlq := &fakeDLQSink{}
	p := NewProcessor(&Store{}, registry, dlq, ProcessorConfig{MaxAttempts: 3})
	p.store = store

	nacked, requeued := false, false
	err := p.Handle(context.Background(), Delivery{
		Envelope: testEnvelope("e3", "order.created"),
		Ack:      func() { t.Fatal("should not ack on retryable failure") },
		Nack:     func(requeue bool) { nacked = true; requeued = requeue },
	})

	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !nacked || !requeued {
		t.Error("expected message to be nacked with requeue=true")
	}
	if len(dlq.enqueued) != 0 {
		t.Errorf("expected no DLQ write before attempts exhausted, got %v", dlq.enqueued)
	}
}

func TestProcessor_Handle_NonRetryableFailureGoesToDLQImmediately(t *testing.T) {
	store := newFakeEntryStore()
	registry := NewRegistry()
	registry.Register("order.created", func(ctx context.Context, env *envelope.Envelope) error {
		return apperrors.Business("inventory rejected the reservation")
	})
	dlq := &fakeDLQSink{}
	p := NewProcessor(&Store{}, registry, dlq, ProcessorConfig{MaxAttempts: 5})
	p.store = store

	acked := false
	err := p.Handle(context.Background(), Delivery{
		Envelope: testEnvelope("e4", "order.created"),
		Ack:      func() { acked = true },
		Nack:     func(requeue bool) { t.Fatal("business failures should not be requeued") },
	})

	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acked {
		t.Error("expected message acked after DLQ write")
	}
	if len(dlq.enqueued) != 1 || dlq.enqueued[0] != "e4" {
		t.Errorf("expected e4 sent to DLQ, got %v", dlq.enqueued)
	}
}
