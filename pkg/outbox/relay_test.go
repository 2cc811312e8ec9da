package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

type fakeRelayStore struct {
	pending   []*Message
	published []uint64
	failures  []uint64
	exhausted map[uint64]bool
}

func (f *fakeRelayStore) ClaimBatch(ctx context.Context, workerID string, batchSize int, leaseFor time.Duration) ([]*Message, error) {
	if len(f.pending) <= batchSize {
		rows := f.pending
		f.pending = nil
		return rows, nil
	}
	rows := f.pending[:batchSize]
	f.pending = f.pending[batchSize:]
	return rows, nil
}

func (f *fakeRelayStore) MarkPublished(ctx context.Context, id uint64) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRelayStore) RecordFailure(ctx context.Context, id uint64, lastErr string, exhausted bool) error {
	f.failures = append(f.failures, id)
	if f.exhausted == nil {
		f.exhausted = make(map[uint64]bool)
	}
	f.exhausted[id] = exhausted
	return nil
}

func (f *fakeRelayStore) CountByStatus(ctx context.Context, status Status) (int64, error) {
	return int64(len(f.pending)), nil
}

type fakePublisher struct {
	fail  bool
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, partitionCount int, env *envelope.Envelope) error {
	f.calls++
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

type fakeDLQ struct {
	enqueued []string
}

func (f *fakeDLQ) Enqueue(ctx context.Context, service, reason string, env *envelope.Envelope) error {
	f.enqueued = append(f.enqueued, env.EventID)
	return nil
}

func newTestRelay(store *fakeRelayStore, pub *fakePublisher, dlq *fakeDLQ) *Relay {
	return &Relay{
		store:     store,
		publisher: pub,
		dlq:       dlq,
		cfg:       RelayConfig{PollInterval: time.Second, BatchSize: 10, MaxRetries: 3, LeaseDuration: time.Second, PartitionCount: 1},
		stopCh:    make(chan struct{}),
	}
}

func TestRelay_Tick_PublishesAndMarksPublished(t *testing.T) {
	store := &fakeRelayStore{pending: []*Message{
		{ID: 1, EventID: "e1", Topic: "order", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{}
	dlq := &fakeDLQ{}
	r := newTestRelay(store, pub, dlq)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if pub.calls != 1 {
		t.Errorf("expected 1 publish call, got %d", pub.calls)
	}
	if len(store.published) != 1 || store.published[0] != 1 {
		t.Errorf("expected message 1 marked published, got %v", store.published)
	}
	if len(dlq.enqueued) != 0 {
		t.Errorf("expected no DLQ writes, got %v", dlq.enqueued)
	}
}

func TestRelay_Tick_RetriesBeforeExhaustion(t *testing.T) {
	store := &fakeRelayStore{pending: []*Message{
		{ID: 2, EventID: "e2", Topic: "order", Payload: []byte(`{}`), Attempts: 0, MaxRetries: 3},
	}}
	pub := &fakePublisher{fail: true}
	dlq := &fakeDLQ{}
	r := newTestRelay(store, pub, dlq)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(store.failures) != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", len(store.failures))
	}
	if store.exhausted[2] {
		t.Error("expected retry not yet exhausted (attempt 1 of 3)")
	}
	if len(dlq.enqueued) != 0 {
		t.Errorf("expected no DLQ write before exhaustion, got %v", dlq.enqueued)
	}
}

func TestRelay_Tick_ExhaustedRetriesGoesToDLQ(t *testing.T) {
	store := &fakeRelayStore{pending: []*Message{
		{ID: 3, EventID: "e3", Topic: "order", Payload: []byte(`{}`), Attempts: 2, MaxRetries: 3},
	}}
	pub := &fakePublisher{fail: true}
	dlq := &fakeDLQ{}
	r := newTestRelay(store, pub, dlq)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if !store.exhausted[3] {
		t.Error("expected retries exhausted on the 3rd attempt")
	}
	if len(dlq.enqueued) != 1 || dlq.enqueued[0] != "e3" {
		t.Errorf("expected event e3 to be sent to DLQ, got %v", dlq.enqueued)
	}
}

func TestRelayConfig_SetDefaults(t *testing.T) {
	cfg := RelayConfig{}
	cfg.setDefaults()

	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval default = %s", cfg.PollInterval)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize default = %d", cfg.BatchSize)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries default = %d", cfg.MaxRetries)
	}
	if cfg.WorkerID == "" {
		t.Error("WorkerID should be auto-generated when empty")
	}
}
