package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xiebiao/saga-commerce/pkg/sagastore"
)

type fakeStuckStore struct {
	claimed  []*sagastore.State
	released []string
	claimErr error
}

func (f *fakeStuckStore) ClaimStuck(ctx context.Context, workerID string, stuckThreshold, leaseFor time.Duration, limit int) ([]*sagastore.State, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.claimed, nil
}

func (f *fakeStuckStore) ReleaseLease(ctx context.Context, id string) error {
	f.released = append(f.released, id)
	return nil
}

func (f *fakeStuckStore) CountByTypeAndStatus(ctx context.Context) ([]sagastore.TypeStatusCount, error) {
	return nil, nil
}

type fakeResumer struct {
	resumed []string
	err     error
}

func (f *fakeResumer) Resume(ctx context.Context, state *sagastore.State) error {
	f.resumed = append(f.resumed, state.ID)
	return f.err
}

func TestWorker_Tick_ResumesClaimedSagas(t *testing.T) {
	store := &fakeStuckStore{claimed: []*sagastore.State{
		{ID: "saga-1", CurrentStep: "charge_payment"},
		{ID: "saga-2", CurrentStep: "reserve_inventory"},
	}}
	resumer := &fakeResumer{}
	w := NewWorker(nil, resumer, Config{})
	w.store = store

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(resumer.resumed) != 2 {
		t.Fatalf("expected 2 resumed sagas, got %d", len(resumer.resumed))
	}
	if len(store.released) != 2 {
		t.Errorf("expected lease released for both sagas, got %d", len(store.released))
	}
}

func TestWorker_Tick_ReleasesLeaseEvenOnResumeError(t *testing.T) {
	store := &fakeStuckStore{claimed: []*sagastore.State{{ID: "saga-3"}}}
	resumer := &fakeResumer{err: errors.New("outbox unavailable")}
	w := NewWorker(nil, resumer, Config{})
	w.store = store

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(store.released) != 1 {
		t.Errorf("expected lease released despite resume error, got %d", len(store.released))
	}
}

func TestWorker_Tick_PropagatesClaimError(t *testing.T) {
	store := &fakeStuckStore{claimErr: errors.New("db unavailable")}
	w := NewWorker(nil, &fakeResumer{}, Config{})
	w.store = store

	if err := w.Tick(context.Background()); err == nil {
		t.Fatal("expected Tick() to propagate claim error")
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval default = %v, want 60s", cfg.PollInterval)
	}
	if cfg.StuckThreshold != 120*time.Second {
		t.Errorf("StuckThreshold default = %v, want 120s", cfg.StuckThreshold)
	}
	if cfg.WorkerID == "" {
		t.Error("WorkerID should default to a non-empty value")
	}
}
