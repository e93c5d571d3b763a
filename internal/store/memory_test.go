package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

func testDecision(i int) core.Decision {
	return core.Decision{
		ID:        fmt.Sprintf("d-%06d", i),
		Actor:     "alice",
		Resource:  "repo:core",
		Action:    "deploy",
		Outcome:   core.OutcomeAllow,
		State:     core.DecisionPending,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
	}
}

func TestMemorySaveDecisionRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.SaveDecision(ctx, testDecision(1)); err != nil {
		t.Fatalf("SaveDecision() unexpected error: %v", err)
	}
	if err := s.SaveDecision(ctx, testDecision(1)); err == nil {
		t.Error("SaveDecision() accepted a duplicate ID")
	}
}

func TestMemoryTransitionDecision(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if err := s.SaveDecision(ctx, testDecision(1)); err != nil {
		t.Fatalf("SaveDecision() unexpected error: %v", err)
	}
	id := testDecision(1).ID

	if err := s.TransitionDecision(ctx, id, core.DecisionPending, core.DecisionApproved); err != nil {
		t.Fatalf("TransitionDecision() unexpected error: %v", err)
	}
	d, err := s.DecisionByID(ctx, id)
	if err != nil {
		t.Fatalf("DecisionByID() unexpected error: %v", err)
	}
	if d.State != core.DecisionApproved {
		t.Errorf("State = %s, want APPROVED", d.State)
	}

	// CAS: the expected-from state no longer holds
	err = s.TransitionDecision(ctx, id, core.DecisionPending, core.DecisionDenied)
	var invalid *core.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("stale transition error = %v, want InvalidTransitionError", err)
	}

	// APPROVED -> DENIED is not a legal move even with the right from state
	err = s.TransitionDecision(ctx, id, core.DecisionApproved, core.DecisionDenied)
	if !errors.As(err, &invalid) {
		t.Errorf("illegal transition error = %v, want InvalidTransitionError", err)
	}

	if err := s.TransitionDecision(ctx, "d-404", core.DecisionPending, core.DecisionApproved); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown ID error = %v, want ErrNotFound", err)
	}
}

func TestMemoryListDecisionsPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	const total = 2500
	for i := 0; i < total; i++ {
		if err := s.SaveDecision(ctx, testDecision(i)); err != nil {
			t.Fatalf("SaveDecision(%d) unexpected error: %v", i, err)
		}
	}

	seen := make(map[string]bool, total)
	offset := 0
	pageSizes := []int{}
	for {
		page, err := s.ListDecisions(ctx, core.DecisionFilter{Limit: 1000, Offset: offset})
		if err != nil {
			t.Fatalf("ListDecisions() unexpected error: %v", err)
		}
		if len(page) == 0 {
			break
		}
		pageSizes = append(pageSizes, len(page))
		for _, d := range page {
			if seen[d.ID] {
				t.Fatalf("decision %s returned twice across pages", d.ID)
			}
			seen[d.ID] = true
		}
		offset += len(page)
	}

	if len(seen) != total {
		t.Errorf("paged through %d decisions, want %d", len(seen), total)
	}
	want := []int{1000, 1000, 500}
	if len(pageSizes) != len(want) {
		t.Fatalf("page sizes = %v, want %v", pageSizes, want)
	}
	for i := range want {
		if pageSizes[i] != want[i] {
			t.Errorf("page %d size = %d, want %d", i, pageSizes[i], want[i])
		}
	}
}

func TestMemoryListDecisionsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	base := testDecision(0)
	base.ID = "d-allow"
	if err := s.SaveDecision(ctx, base); err != nil {
		t.Fatal(err)
	}
	deny := testDecision(1)
	deny.ID = "d-deny"
	deny.Actor = "mallory"
	deny.Outcome = core.OutcomeDeny
	if err := s.SaveDecision(ctx, deny); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter core.DecisionFilter
		want   []string
	}{
		{name: "by actor", filter: core.DecisionFilter{Actor: "mallory"}, want: []string{"d-deny"}},
		{name: "by outcome", filter: core.DecisionFilter{Outcome: core.OutcomeAllow}, want: []string{"d-allow"}},
		{name: "by resource", filter: core.DecisionFilter{Resource: "repo:core"}, want: []string{"d-allow", "d-deny"}},
		{name: "from excludes earlier", filter: core.DecisionFilter{From: base.CreatedAt.Add(time.Millisecond)}, want: []string{"d-deny"}},
		{name: "to excludes later", filter: core.DecisionFilter{To: base.CreatedAt}, want: []string{"d-allow"}},
		{name: "no match", filter: core.DecisionFilter{Actor: "nobody"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDecisions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListDecisions() unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d decisions, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].ID != tt.want[i] {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestMemoryDecisionsInState(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for i := 0; i < 5; i++ {
		if err := s.SaveDecision(ctx, testDecision(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.TransitionDecision(ctx, testDecision(0).ID, core.DecisionPending, core.DecisionApproved); err != nil {
		t.Fatal(err)
	}

	pending, err := s.DecisionsInState(ctx, core.DecisionPending, 0)
	if err != nil {
		t.Fatalf("DecisionsInState() unexpected error: %v", err)
	}
	if len(pending) != 4 {
		t.Errorf("pending count = %d, want 4", len(pending))
	}

	limited, err := s.DecisionsInState(ctx, core.DecisionPending, 2)
	if err != nil {
		t.Fatalf("DecisionsInState() unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}

func TestMemoryAuditChainContiguity(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	tail, err := s.TailEntry(ctx, "tenant:acme")
	if err != nil || tail != nil {
		t.Fatalf("TailEntry() on empty chain = (%v, %v), want (nil, nil)", tail, err)
	}

	if err := s.AppendEntry(ctx, core.AuditEntry{ChainID: "tenant:acme", Sequence: 0, EntryHash: "h0"}); err != nil {
		t.Fatalf("AppendEntry(0) unexpected error: %v", err)
	}

	// a gap or a replay both lose the tail race
	err = s.AppendEntry(ctx, core.AuditEntry{ChainID: "tenant:acme", Sequence: 2})
	var conflict *core.ConcurrencyConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("gapped append error = %v, want ConcurrencyConflictError", err)
	}
	err = s.AppendEntry(ctx, core.AuditEntry{ChainID: "tenant:acme", Sequence: 0})
	if !errors.As(err, &conflict) {
		t.Errorf("replayed append error = %v, want ConcurrencyConflictError", err)
	}

	if err := s.AppendEntry(ctx, core.AuditEntry{ChainID: "tenant:acme", Sequence: 1, EntryHash: "h1"}); err != nil {
		t.Fatalf("AppendEntry(1) unexpected error: %v", err)
	}
	tail, err = s.TailEntry(ctx, "tenant:acme")
	if err != nil {
		t.Fatalf("TailEntry() unexpected error: %v", err)
	}
	if tail.Sequence != 1 || tail.EntryHash != "h1" {
		t.Errorf("tail = (%d, %s), want (1, h1)", tail.Sequence, tail.EntryHash)
	}
}

func TestMemoryEntriesFrom(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for i := uint64(0); i < 10; i++ {
		if err := s.AppendEntry(ctx, core.AuditEntry{ChainID: "c", Sequence: i}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.EntriesFrom(ctx, "c", 4, 3)
	if err != nil {
		t.Fatalf("EntriesFrom() unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].Sequence != 4 || got[2].Sequence != 6 {
		t.Errorf("EntriesFrom(4, 3) = sequences %v, want [4 5 6]", got)
	}

	past, err := s.EntriesFrom(ctx, "c", 10, 5)
	if err != nil {
		t.Fatalf("EntriesFrom() unexpected error: %v", err)
	}
	if len(past) != 0 {
		t.Errorf("EntriesFrom past the tail returned %d entries", len(past))
	}
}

func TestMemoryCheckpoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.LatestCheckpoint(ctx, "c"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("LatestCheckpoint() on empty store error = %v, want ErrNotFound", err)
	}

	for i := uint64(0); i < 3; i++ {
		cp := core.AuditCheckpoint{ID: fmt.Sprintf("cp-%d", i), ChainID: "c", TailSequence: i}
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint() unexpected error: %v", err)
		}
	}

	latest, err := s.LatestCheckpoint(ctx, "c")
	if err != nil {
		t.Fatalf("LatestCheckpoint() unexpected error: %v", err)
	}
	if latest.ID != "cp-2" || latest.TailSequence != 2 {
		t.Errorf("latest = %s at %d, want cp-2 at 2", latest.ID, latest.TailSequence)
	}
}
