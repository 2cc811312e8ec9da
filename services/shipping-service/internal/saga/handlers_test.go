package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/services/shipping-service/internal/domain/shipment"
)

type fakeShipmentRepo struct {
	byOrderID map[uint]*shipment.Shipment
	createErr error
	updateErr error
}

func newFakeShipmentRepo() *fakeShipmentRepo {
	return &fakeShipmentRepo{byOrderID: make(map[uint]*shipment.Shipment)}
}

func (f *fakeShipmentRepo) Create(ctx context.Context, s *shipment.Shipment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.byOrderID[s.OrderID] = s
	return nil
}

func (f *fakeShipmentRepo) FindByOrderID(ctx context.Context, orderID uint) (*shipment.Shipment, error) {
	s, ok := f.byOrderID[orderID]
	if !ok {
		return nil, shipment.ErrShipmentNotFound
	}
	return s, nil
}

func (f *fakeShipmentRepo) Update(ctx context.Context, s *shipment.Shipment) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byOrderID[s.OrderID]; !ok {
		return shipment.ErrShipmentNotFound
	}
	f.byOrderID[s.OrderID] = s
	return nil
}

func newCreateShipmentEnvelope(t *testing.T, orderID uint, orderNo string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New("saga.create_shipment", orderNo, orderNo, createShipmentCommand{
		OrderID: orderID,
		OrderNo: orderNo,
	})
	if err != nil {
		t.Fatalf("envelope.New() error = %v", err)
	}
	return env
}

func newCancelShipmentEnvelope(t *testing.T, orderID uint, orderNo string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New("saga.create_shipment.compensate", orderNo, orderNo, cancelShipmentCommand{
		OrderID: orderID,
		OrderNo: orderNo,
	})
	if err != nil {
		t.Fatalf("envelope.New() error = %v", err)
	}
	return env
}

func TestCreateShipment_CreatesShipmentForNewOrder(t *testing.T) {
	repo := newFakeShipmentRepo()
	h := NewHandlers(repo)

	outcome, err := h.CreateShipment(context.Background(), newCreateShipmentEnvelope(t, 1, "ORD-1"))
	if err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome.Success = false, want true")
	}

	stored, ok := repo.byOrderID[1]
	if !ok {
		t.Fatal("expected a shipment row to be created")
	}
	if stored.Status != shipment.ShipmentStatusCreated {
		t.Errorf("Status = %v, want ShipmentStatusCreated", stored.Status)
	}
	if stored.ShipmentNo == "" {
		t.Error("expected a generated shipment number")
	}
}

func TestCreateShipment_IsIdempotentOnRedelivery(t *testing.T) {
	repo := newFakeShipmentRepo()
	h := NewHandlers(repo)
	env := newCreateShipmentEnvelope(t, 1, "ORD-1")

	if _, err := h.CreateShipment(context.Background(), env); err != nil {
		t.Fatalf("first CreateShipment() error = %v", err)
	}
	firstShipmentNo := repo.byOrderID[1].ShipmentNo

	outcome, err := h.CreateShipment(context.Background(), env)
	if err != nil {
		t.Fatalf("second CreateShipment() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome.Success = false on redelivery, want true")
	}
	if repo.byOrderID[1].ShipmentNo != firstShipmentNo {
		t.Error("redelivery must not create a second shipment")
	}
}

func TestCreateShipment_StorageErrorPropagates(t *testing.T) {
	repo := newFakeShipmentRepo()
	repo.createErr = errors.New("mysql: connection refused")
	h := NewHandlers(repo)

	_, err := h.CreateShipment(context.Background(), newCreateShipmentEnvelope(t, 1, "ORD-1"))
	if err == nil {
		t.Fatal("expected a storage error to propagate so inbox can classify retry/DLQ")
	}
}

func TestCompensateCreateShipment_CancelsExistingShipment(t *testing.T) {
	repo := newFakeShipmentRepo()
	h := NewHandlers(repo)
	if _, err := h.CreateShipment(context.Background(), newCreateShipmentEnvelope(t, 1, "ORD-1")); err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}

	outcome, err := h.CompensateCreateShipment(context.Background(), newCancelShipmentEnvelope(t, 1, "ORD-1"))
	if err != nil {
		t.Fatalf("CompensateCreateShipment() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome.Success = false, want true")
	}
	if repo.byOrderID[1].Status != shipment.ShipmentStatusCancelled {
		t.Errorf("Status = %v, want ShipmentStatusCancelled", repo.byOrderID[1].Status)
	}
}

func TestCompensateCreateShipment_NoShipmentIsNoopSuccess(t *testing.T) {
	repo := newFakeShipmentRepo()
	h := NewHandlers(repo)

	outcome, err := h.CompensateCreateShipment(context.Background(), newCancelShipmentEnvelope(t, 99, "ORD-99"))
	if err != nil {
		t.Fatalf("CompensateCreateShipment() error = %v", err)
	}
	if !outcome.Success {
		t.Fatal("compensating a never-created shipment must report success (nothing to undo)")
	}
}

func TestCompensateCreateShipment_AlreadyCancelledIsNoopSuccess(t *testing.T) {
	repo := newFakeShipmentRepo()
	h := NewHandlers(repo)
	if _, err := h.CreateShipment(context.Background(), newCreateShipmentEnvelope(t, 1, "ORD-1")); err != nil {
		t.Fatalf("CreateShipment() error = %v", err)
	}
	cancelEnv := newCancelShipmentEnvelope(t, 1, "ORD-1")
	if _, err := h.CompensateCreateShipment(context.Background(), cancelEnv); err != nil {
		t.Fatalf("first CompensateCreateShipment() error = %v", err)
	}

	outcome, err := h.CompensateCreateShipment(context.Background(), cancelEnv)
	if err != nil {
		t.Fatalf("second CompensateCreateShipment() error = %v", err)
	}
	if !outcome.Success {
		t.Fatal("redelivered compensation on an already-cancelled shipment must report success")
	}
}
