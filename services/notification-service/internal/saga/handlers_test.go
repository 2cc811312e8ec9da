package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/services/notification-service/internal/domain/notification"
)

type fakeNotificationRepo struct {
	records   []*notification.Record
	createErr error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, r *notification.Record) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, r)
	return nil
}

func newOrderEventEnvelope(t *testing.T, eventType string, orderID uint, orderNo string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New(eventType, orderNo, orderNo, orderNotificationEvent{
		OrderID: orderID,
		OrderNo: orderNo,
	})
	if err != nil {
		t.Fatalf("envelope.New() error = %v", err)
	}
	return env
}

func TestOnOrderConfirmed_RecordsConfirmationNotification(t *testing.T) {
	repo := &fakeNotificationRepo{}
	h := NewHandlers(repo)

	err := h.OnOrderConfirmed(context.Background(), newOrderEventEnvelope(t, "order.order_confirmed", 1, "ORD-1"))
	if err != nil {
		t.Fatalf("OnOrderConfirmed() error = %v", err)
	}
	if len(repo.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(repo.records))
	}
	if repo.records[0].Kind != notification.KindOrderConfirmed {
		t.Errorf("Kind = %v, want KindOrderConfirmed", repo.records[0].Kind)
	}
	if repo.records[0].OrderNo != "ORD-1" {
		t.Errorf("OrderNo = %q, want ORD-1", repo.records[0].OrderNo)
	}
}

func TestOnOrderCancelled_RecordsCancellationNotification(t *testing.T) {
	repo := &fakeNotificationRepo{}
	h := NewHandlers(repo)

	err := h.OnOrderCancelled(context.Background(), newOrderEventEnvelope(t, "order.order_cancelled", 2, "ORD-2"))
	if err != nil {
		t.Fatalf("OnOrderCancelled() error = %v", err)
	}
	if len(repo.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(repo.records))
	}
	if repo.records[0].Kind != notification.KindOrderCancelled {
		t.Errorf("Kind = %v, want KindOrderCancelled", repo.records[0].Kind)
	}
}

func TestOnOrderConfirmed_StorageErrorPropagates(t *testing.T) {
	repo := &fakeNotificationRepo{createErr: errors.New("mysql: connection refused")}
	h := NewHandlers(repo)

	err := h.OnOrderConfirmed(context.Background(), newOrderEventEnvelope(t, "order.order_confirmed", 1, "ORD-1"))
	if err == nil {
		t.Fatal("expected a storage error to propagate so inbox can classify retry/DLQ")
	}
}
