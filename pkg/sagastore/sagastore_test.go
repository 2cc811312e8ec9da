package sagastore

import "testing"

func TestStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from   Status
		to     Status
		expect bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCompensating, true},
		{StatusInProgress, StatusFailed, false},
		{StatusCompensating, StatusCompensated, true},
		{StatusCompensating, StatusFailed, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusInProgress, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.expect {
			t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", c.from, c.to, got, c.expect)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCompensated, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusNotStarted, StatusInProgress, StatusCompensating} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestState_EncodeDecodeSteps(t *testing.T) {
	st := &State{}
	steps := []StepState{
		{Name: "reserve_inventory", Status: StepCompleted},
		{Name: "charge_payment", Status: StepInProgress, Attempt: 2},
	}
	if err := st.EncodeSteps(steps); err != nil {
		t.Fatalf("EncodeSteps() error = %v", err)
	}

	decoded, err := st.DecodeSteps()
	if err != nil {
		t.Fatalf("DecodeSteps() error = %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(decoded))
	}
	if decoded[1].Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", decoded[1].Attempt)
	}
}

func TestStepStatus_Terminal(t *testing.T) {
	for _, s := range []StepStatus{StepCompleted, StepCompensated, StepFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []StepStatus{StepPending, StepInProgress, StepCompensating} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStepByName(t *testing.T) {
	steps := []StepState{
		{Name: "reserve_inventory", Status: StepCompleted},
		{Name: "charge_payment", Status: StepPending},
	}
	if got := StepByName(steps, "charge_payment"); got == nil || got.Status != StepPending {
		t.Errorf("StepByName(charge_payment) = %+v", got)
	}
	if got := StepByName(steps, "missing"); got != nil {
		t.Errorf("StepByName(missing) = %+v, want nil", got)
	}
}
