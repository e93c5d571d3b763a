package core

import (
	"errors"
	"testing"
)

func TestDecisionStateMachine(t *testing.T) {
	tests := []struct {
		from DecisionState
		to   DecisionState
		ok   bool
	}{
		{DecisionPending, DecisionApproved, true},
		{DecisionPending, DecisionDenied, true},
		{DecisionPending, DecisionActive, false},
		{DecisionPending, DecisionExpired, false},
		{DecisionApproved, DecisionActive, true},
		{DecisionApproved, DecisionExpired, true},
		{DecisionApproved, DecisionDenied, false},
		{DecisionApproved, DecisionPending, false},
		{DecisionActive, DecisionExpired, true},
		{DecisionActive, DecisionApproved, false},
		{DecisionDenied, DecisionApproved, false},
		{DecisionDenied, DecisionPending, false},
		{DecisionExpired, DecisionActive, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestDecisionTransition(t *testing.T) {
	d := Decision{ID: "d-1", State: DecisionPending}

	if err := d.Transition(DecisionApproved); err != nil {
		t.Fatalf("Transition() unexpected error: %v", err)
	}
	if d.State != DecisionApproved || d.Version != 1 {
		t.Errorf("after transition: state = %s version = %d, want APPROVED / 1", d.State, d.Version)
	}

	err := d.Transition(DecisionDenied)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Transition() error = %v, want InvalidTransitionError", err)
	}
	if invalid.From != string(DecisionApproved) || invalid.To != string(DecisionDenied) {
		t.Errorf("error carries %s -> %s, want APPROVED -> DENIED", invalid.From, invalid.To)
	}
	if d.State != DecisionApproved || d.Version != 1 {
		t.Errorf("rejected transition mutated the decision: %s / %d", d.State, d.Version)
	}
}

func TestDecisionCommittedState(t *testing.T) {
	allow := Decision{Outcome: OutcomeAllow}
	if allow.CommittedState() != DecisionApproved {
		t.Errorf("CommittedState(ALLOW) = %s, want APPROVED", allow.CommittedState())
	}
	deny := Decision{Outcome: OutcomeDeny}
	if deny.CommittedState() != DecisionDenied {
		t.Errorf("CommittedState(DENY) = %s, want DENIED", deny.CommittedState())
	}
}

func TestDecisionStateIsTerminal(t *testing.T) {
	for _, s := range []DecisionState{DecisionDenied, DecisionExpired} {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []DecisionState{DecisionPending, DecisionApproved, DecisionActive} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}
