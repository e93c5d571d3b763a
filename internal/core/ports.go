package core

import (
	"context"
	"time"
)

// RuleStore is the read surface the engine needs for rules. Administrative
// CRUD lives outside the decision core.
type RuleStore interface {
	RuleByID(ctx context.Context, id string) (Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
}

// PolicyStore is the read surface for policies.
type PolicyStore interface {
	PolicyByID(ctx context.Context, id string) (Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)
}

// EntitlementStore reads active grants under a consistent snapshot: two
// rules within the same evaluation never see different entitlement states.
type EntitlementStore interface {
	// ActiveEntitlements returns the grants in force for the subject at the
	// given instant.
	ActiveEntitlements(ctx context.Context, subjectID string, at time.Time) ([]Entitlement, error)
	ListEntitlements(ctx context.Context) ([]Entitlement, error)
	// TransitionEntitlement moves a grant through its status machine.
	TransitionEntitlement(ctx context.Context, id string, to EntitlementStatus) (Entitlement, error)
}

// DecisionFilter narrows decision listing/export. Zero values mean "any".
type DecisionFilter struct {
	Actor    string
	Resource string
	Outcome  Outcome
	From     time.Time
	To       time.Time

	// Limit/Offset paginate the result; ordering is stable by decision ID
	// ascending, so repeated paging covers unbounded result sets without
	// duplicates or gaps.
	Limit  int
	Offset int
}

// DecisionStore persists decisions and their lifecycle state.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d Decision) error
	DecisionByID(ctx context.Context, id string) (Decision, error)
	// TransitionDecision advances the lifecycle state, enforcing the state
	// machine and the expected current state (compare-and-set).
	TransitionDecision(ctx context.Context, id string, from, to DecisionState) error
	ListDecisions(ctx context.Context, f DecisionFilter) ([]Decision, error)
	// DecisionsInState supports the sweeps (activation, expiry, pending
	// recovery).
	DecisionsInState(ctx context.Context, state DecisionState, limit int) ([]Decision, error)
}

// AuditEntryStore is the storage half of the audit ledger. Append must
// reject a non-contiguous sequence with a ConcurrencyConflictError so the
// ledger's optimistic retry can re-read the tail; it must never partially
// apply an entry.
type AuditEntryStore interface {
	// TailEntry returns the highest-sequence entry of a chain, or nil when
	// the chain does not exist yet.
	TailEntry(ctx context.Context, chainID string) (*AuditEntry, error)
	AppendEntry(ctx context.Context, e AuditEntry) error
	// EntriesFrom returns up to limit entries of a chain starting at
	// fromSeq, in sequence order.
	EntriesFrom(ctx context.Context, chainID string, fromSeq uint64, limit int) ([]AuditEntry, error)
}

// CheckpointStore persists chain checkpoints separately from the chains they
// reference.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp AuditCheckpoint) error
	LatestCheckpoint(ctx context.Context, chainID string) (AuditCheckpoint, error)
}
