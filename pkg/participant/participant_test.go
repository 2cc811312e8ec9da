package participant

import (
	"context"
	"errors"
	"testing"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

type fakeOutbox struct {
	topic      string
	maxRetries int
	env        *envelope.Envelope
	err        error
}

func (f *fakeOutbox) Enqueue(ctx context.Context, topic string, maxRetries int, env *envelope.Envelope) error {
	f.topic = topic
	f.maxRetries = maxRetries
	f.env = env
	return f.err
}

func TestReplyPublisher_Reply_PublishesToReplyTopicWithCorrelationIDPartitionKey(t *testing.T) {
	fo := &fakeOutbox{}
	pub := NewReplyPublisher(fo, "saga.replies", 3)

	outcome := Outcome{Success: true, Output: map[string]interface{}{"payment_id": "pay-1"}}
	if err := pub.Reply(context.Background(), "corr-1", "charge_payment", outcome); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	if fo.topic != "saga.replies" {
		t.Errorf("topic = %q, want saga.replies", fo.topic)
	}
	if fo.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", fo.maxRetries)
	}
	if fo.env == nil {
		t.Fatal("expected envelope to be enqueued")
	}
	if fo.env.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", fo.env.CorrelationID)
	}
	if fo.env.PartitionKey != "corr-1" {
		t.Errorf("PartitionKey = %q, want corr-1 (so all replies for a saga land in one partition)", fo.env.PartitionKey)
	}
	if fo.env.EventType != "saga.reply" {
		t.Errorf("EventType = %q, want saga.reply", fo.env.EventType)
	}

	var payload ReplyPayload
	if err := fo.env.Unmarshal(&payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.StepName != "charge_payment" || !payload.Success || payload.Output["payment_id"] != "pay-1" {
		t.Errorf("payload = %+v, unexpected", payload)
	}
}

func TestReplyPublisher_Reply_DefaultsMaxRetries(t *testing.T) {
	fo := &fakeOutbox{}
	pub := NewReplyPublisher(fo, "saga.replies", 0)
	if err := pub.Reply(context.Background(), "corr-1", "reserve_inventory", Outcome{Success: true}); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if fo.maxRetries != 5 {
		t.Errorf("maxRetries = %d, want default 5", fo.maxRetries)
	}
}

func TestReplyPublisher_Reply_PropagatesOutboxError(t *testing.T) {
	fo := &fakeOutbox{err: errors.New("db down")}
	pub := NewReplyPublisher(fo, "saga.replies", 3)
	if err := pub.Reply(context.Background(), "corr-1", "reserve_inventory", Outcome{Success: true}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func newCommandEnvelope(t *testing.T, correlationID string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New("saga.reserve_inventory", correlationID, correlationID, map[string]interface{}{"sku": "widget"})
	if err != nil {
		t.Fatalf("envelope.New() error = %v", err)
	}
	return env
}

func TestHandler_Handle_BusinessSuccessReplies(t *testing.T) {
	fo := &fakeOutbox{}
	pub := NewReplyPublisher(fo, "saga.replies", 3)
	business := func(ctx context.Context, env *envelope.Envelope) (Outcome, error) {
		return Outcome{Success: true, Output: map[string]interface{}{"reserved": true}}, nil
	}
	h := NewHandler("reserve_inventory", business, pub)

	if err := h.Handle(context.Background(), newCommandEnvelope(t, "corr-2")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if fo.env == nil {
		t.Fatal("expected a reply to be published")
	}
	var payload ReplyPayload
	if err := fo.env.Unmarshal(&payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.StepName != "reserve_inventory" || !payload.Success {
		t.Errorf("payload = %+v, unexpected", payload)
	}
}

func TestHandler_Handle_BusinessRejectionStillReplies(t *testing.T) {
	fo := &fakeOutbox{}
	pub := NewReplyPublisher(fo, "saga.replies", 3)
	business := func(ctx context.Context, env *envelope.Envelope) (Outcome, error) {
		return Outcome{Success: false, Reason: "库存不足"}, nil
	}
	h := NewHandler("reserve_inventory", business, pub)

	if err := h.Handle(context.Background(), newCommandEnvelope(t, "corr-3")); err != nil {
		t.Fatalf("Handle() error = %v, want nil (business rejection is not an infra error)", err)
	}
	if fo.env == nil {
		t.Fatal("expected a reply to be published even for a business rejection")
	}
	var payload ReplyPayload
	if err := fo.env.Unmarshal(&payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if payload.Success || payload.Reason != "库存不足" {
		t.Errorf("payload = %+v, unexpected", payload)
	}
}

func TestHandler_Handle_InfraErrorPropagatesWithoutReplying(t *testing.T) {
	fo := &fakeOutbox{}
	pub := NewReplyPublisher(fo, "saga.replies", 3)
	wantErr := errors.New("mysql: connection refused")
	business := func(ctx context.Context, env *envelope.Envelope) (Outcome, error) {
		return Outcome{}, wantErr
	}
	h := NewHandler("reserve_inventory", business, pub)

	err := h.Handle(context.Background(), newCommandEnvelope(t, "corr-4"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("Handle() error = %v, want %v", err, wantErr)
	}
	if fo.env != nil {
		t.Error("infra error should propagate to inbox for retry/DLQ classification, not be replied")
	}
}
