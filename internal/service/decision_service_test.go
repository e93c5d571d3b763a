package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/engine"
	"github.com/custodia-project/custodia/internal/store"
)

// fakeLedger records appends per chain and can be told to fail, simulating
// an unreachable audit store.
type fakeLedger struct {
	mu      sync.Mutex
	chains  map[string][]core.AuditEntry
	failErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{chains: make(map[string][]core.AuditEntry)}
}

func (l *fakeLedger) Append(_ context.Context, chainID string, payload core.AuditPayload) (core.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return core.AuditEntry{}, l.failErr
	}
	e := core.AuditEntry{
		ChainID:  chainID,
		Sequence: uint64(len(l.chains[chainID])),
		Payload:  payload,
	}
	l.chains[chainID] = append(l.chains[chainID], e)
	return e, nil
}

func (l *fakeLedger) Verify(_ context.Context, chainID string) (core.VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.VerifyResult{OK: true, ChainID: chainID, ChainLength: len(l.chains[chainID])}, nil
}

func (l *fakeLedger) entries(chainID string) []core.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.AuditEntry(nil), l.chains[chainID]...)
}

func allowAllResolver() *engine.Resolver {
	policies := []core.Policy{{
		ID: "global-open", Scope: core.ScopeGlobal,
		Enabled: true, FailureMode: core.FailClosed,
	}}
	return engine.NewResolver(engine.NewManager(policies, nil), store.NewCatalog(), engine.TieBreakDenyWins)
}

func denyAllResolver() *engine.Resolver {
	return engine.NewResolver(engine.NewManager(nil, nil), store.NewCatalog(), engine.TieBreakDenyWins)
}

func TestAuthorizeCommitsDecision(t *testing.T) {
	ctx := context.Background()
	decisions := store.NewMemory()
	ledger := newFakeLedger()
	svc := NewDecisionService(allowAllResolver(), decisions, ledger, ChainByTenant)

	resp, err := svc.Authorize(ctx, AuthorizeRequest{
		Actor: "alice", Resource: "repo:core", Action: "deploy",
		Context: map[string]any{"tenant_id": "acme"},
	})
	if err != nil {
		t.Fatalf("Authorize() unexpected error: %v", err)
	}
	if resp.Outcome != core.OutcomeAllow {
		t.Errorf("Outcome = %s, want ALLOW", resp.Outcome)
	}
	if resp.State != core.DecisionApproved {
		t.Errorf("State = %s, want APPROVED after commit", resp.State)
	}
	if resp.ChainID != "tenant:acme" {
		t.Errorf("ChainID = %q, want tenant:acme", resp.ChainID)
	}
	if resp.AuditSequence == nil || *resp.AuditSequence != 0 {
		t.Errorf("AuditSequence = %v, want 0", resp.AuditSequence)
	}

	stored, err := decisions.DecisionByID(ctx, resp.DecisionID)
	if err != nil {
		t.Fatalf("DecisionByID() unexpected error: %v", err)
	}
	if stored.State != core.DecisionApproved {
		t.Errorf("stored State = %s, want APPROVED", stored.State)
	}

	entries := ledger.entries("tenant:acme")
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries on tenant:acme, want 1", len(entries))
	}
	p := entries[0].Payload
	if p.Action != core.AuditEvaluate || p.EntityID != resp.DecisionID || p.ActorID != "alice" {
		t.Errorf("audit payload = %+v, want evaluate entry for the decision", p)
	}
}

func TestAuthorizeDenyCommitsToDenied(t *testing.T) {
	ctx := context.Background()
	decisions := store.NewMemory()
	svc := NewDecisionService(denyAllResolver(), decisions, newFakeLedger(), ChainGlobal)

	resp, err := svc.Authorize(ctx, AuthorizeRequest{Actor: "alice", Resource: "r", Action: "a"})
	if err != nil {
		t.Fatalf("Authorize() unexpected error: %v", err)
	}
	if resp.Outcome != core.OutcomeDeny {
		t.Errorf("Outcome = %s, want DENY", resp.Outcome)
	}
	if resp.State != core.DecisionDenied {
		t.Errorf("State = %s, want DENIED", resp.State)
	}
	if resp.Reason != core.NoApplicablePolicyReason {
		t.Errorf("Reason = %q, want %q", resp.Reason, core.NoApplicablePolicyReason)
	}
}

// A failed audit append must not fail the request or lose the decision: the
// decision stays PENDING for the recovery sweep.
func TestAuthorizeLedgerFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	decisions := store.NewMemory()
	ledger := newFakeLedger()
	ledger.failErr = errors.New("audit store unreachable")
	svc := NewDecisionService(allowAllResolver(), decisions, ledger, ChainGlobal)

	resp, err := svc.Authorize(ctx, AuthorizeRequest{Actor: "alice", Resource: "r", Action: "a"})
	if err != nil {
		t.Fatalf("Authorize() must not fail on a ledger error, got: %v", err)
	}
	if resp.State != core.DecisionPending {
		t.Errorf("State = %s, want PENDING", resp.State)
	}
	if resp.AuditSequence != nil {
		t.Errorf("AuditSequence = %v, want nil without a ledger entry", resp.AuditSequence)
	}

	stored, err := decisions.DecisionByID(ctx, resp.DecisionID)
	if err != nil {
		t.Fatalf("DecisionByID() unexpected error: %v", err)
	}
	if stored.State != core.DecisionPending {
		t.Errorf("stored State = %s, want PENDING", stored.State)
	}
}

func TestAuthorizeExplainAttachesTrace(t *testing.T) {
	ctx := context.Background()
	svc := NewDecisionService(allowAllResolver(), store.NewMemory(), newFakeLedger(), ChainGlobal)

	resp, err := svc.Authorize(ctx, AuthorizeRequest{Actor: "alice", Resource: "r", Action: "a", Explain: true})
	if err != nil {
		t.Fatalf("Authorize() unexpected error: %v", err)
	}
	if resp.Trace == nil {
		t.Error("Trace = nil with Explain set")
	}

	resp, err = svc.Authorize(ctx, AuthorizeRequest{Actor: "alice", Resource: "r", Action: "a"})
	if err != nil {
		t.Fatalf("Authorize() unexpected error: %v", err)
	}
	if resp.Trace != nil {
		t.Error("Trace attached without Explain")
	}
}

func TestDecisionByIDNotFound(t *testing.T) {
	svc := NewDecisionService(allowAllResolver(), store.NewMemory(), newFakeLedger(), ChainGlobal)

	_, err := svc.DecisionByID(context.Background(), "d-404")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("DecisionByID() error = %v, want HTTPError 404", err)
	}
}
