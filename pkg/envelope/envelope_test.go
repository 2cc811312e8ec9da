package envelope

import "testing"

type testPayload struct {
	OrderID string `json:"order_id"`
}

func TestNew_PopulatesRequiredHeaders(t *testing.T) {
	env, err := New("order.order_created", "corr-1", "corr-1", testPayload{OrderID: "o-1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if env.EventID == "" {
		t.Error("EventID should not be empty")
	}
	if env.EventType != "order.order_created" {
		t.Errorf("EventType = %s", env.EventType)
	}
	if env.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %s", env.CorrelationID)
	}
	if env.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d", env.SchemaVersion)
	}
	if env.OccurredAt.IsZero() {
		t.Error("OccurredAt should be set")
	}

	var out testPayload
	if err := env.Unmarshal(&out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.OrderID != "o-1" {
		t.Errorf("decoded OrderID = %s", out.OrderID)
	}
}

func TestNewDeterministic_SameInputsSameEventID(t *testing.T) {
	a, err := NewDeterministic("saga.reserve_inventory", "corr-1", "reserve_inventory", 1, "corr-1", testPayload{OrderID: "o-1"})
	if err != nil {
		t.Fatalf("NewDeterministic() error = %v", err)
	}
	b, err := NewDeterministic("saga.reserve_inventory", "corr-1", "reserve_inventory", 1, "corr-1", testPayload{OrderID: "o-1"})
	if err != nil {
		t.Fatalf("NewDeterministic() error = %v", err)
	}
	if a.EventID != b.EventID {
		t.Errorf("expected identical event ids for identical (correlationID, step, attempt), got %s != %s", a.EventID, b.EventID)
	}

	c, err := NewDeterministic("saga.reserve_inventory", "corr-1", "reserve_inventory", 2, "corr-1", testPayload{OrderID: "o-1"})
	if err != nil {
		t.Fatalf("NewDeterministic() error = %v", err)
	}
	if a.EventID == c.EventID {
		t.Error("expected different attempt to derive a different event id")
	}
}
