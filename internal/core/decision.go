package core

import "time"

// Outcome is the result of one authorization evaluation.
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeDeny  Outcome = "DENY"
)

// DecisionState is the lifecycle state of a recorded decision.
// PENDING is the write-ahead state: the decision is saved but its audit
// entry is not yet durable. APPROVED/DENIED mean committed. ACTIVE and
// EXPIRED only apply to ALLOW decisions carrying a validity window.
type DecisionState string

const (
	DecisionPending  DecisionState = "PENDING"
	DecisionApproved DecisionState = "APPROVED"
	DecisionDenied   DecisionState = "DENIED"
	DecisionActive   DecisionState = "ACTIVE"
	DecisionExpired  DecisionState = "EXPIRED"
)

// CanTransition reports whether the state machine permits moving from s to
// the given state. The machine only moves forward; DENIED and EXPIRED are
// terminal.
func (s DecisionState) CanTransition(to DecisionState) bool {
	switch s {
	case DecisionPending:
		return to == DecisionApproved || to == DecisionDenied
	case DecisionApproved:
		return to == DecisionActive || to == DecisionExpired
	case DecisionActive:
		return to == DecisionExpired
	default:
		return false
	}
}

func (s DecisionState) IsTerminal() bool {
	return s == DecisionDenied || s == DecisionExpired
}

// Decision is the immutable outcome of one authorization evaluation. Once
// recorded, only State may change, and only forward.
type Decision struct {
	// ID is globally unique and K-sortable, so decision order is recoverable
	// from IDs alone.
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Actor    string `json:"actor"`
	Resource string `json:"resource"`
	Action   string `json:"action"`

	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`

	// PoliciesEvaluated lists the policies that actually voted, i.e. those
	// at the winning specificity level.
	PoliciesEvaluated []string `json:"policies_evaluated"`

	LatencyMS int64 `json:"latency_ms"`

	// FailureMode is set only when an evaluation error was resolved through
	// a policy's failure mode.
	FailureMode FailureMode `json:"failure_mode,omitempty"`

	State DecisionState `json:"state"`

	// Validity window for time-bound ALLOW decisions. Both nil for
	// point-in-time decisions.
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Version int `json:"version"`
}

// Transition advances the decision's lifecycle state. Moving backward (or
// out of a terminal state) is a programming error and is rejected.
func (d *Decision) Transition(to DecisionState) error {
	if !d.State.CanTransition(to) {
		return &InvalidTransitionError{Entity: "decision", ID: d.ID, From: string(d.State), To: string(to)}
	}
	d.State = to
	d.Version++
	return nil
}

// CommittedState is the post-commit state matching the decision outcome.
func (d *Decision) CommittedState() DecisionState {
	if d.Outcome == OutcomeAllow {
		return DecisionApproved
	}
	return DecisionDenied
}
