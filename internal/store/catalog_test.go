package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

func seededCatalog() *Catalog {
	c := NewCatalog()
	c.Seed(
		[]core.Rule{
			{ID: "adult", Name: "adult", Enabled: true},
			{ID: "mfa", Name: "mfa", Enabled: true},
		},
		[]core.Policy{
			{ID: "global-open", Scope: core.ScopeGlobal, Enabled: true},
		},
		[]core.Entitlement{
			{ID: "e-1", Name: "beta", SubjectID: "alice", Status: core.EntitlementActive},
		},
	)
	return c
}

func TestCatalogSeedReplaces(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	c.Seed([]core.Rule{{ID: "other", Enabled: true}}, nil, nil)

	if _, err := c.RuleByID(ctx, "adult"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RuleByID(adult) after reseed error = %v, want ErrNotFound", err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() unexpected error: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "other" {
		t.Errorf("ListRules() = %v, want only the reseeded rule", rules)
	}
	policies, err := c.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("ListPolicies() unexpected error: %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("ListPolicies() = %v, want empty after reseed", policies)
	}
}

func TestCatalogSaveRuleBumpsVersion(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	saved, err := c.SaveRule(ctx, core.Rule{ID: "adult", Name: "adult v2", Enabled: true})
	if err != nil {
		t.Fatalf("SaveRule() unexpected error: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1 after replacing a seeded rule", saved.Version)
	}

	fresh, err := c.SaveRule(ctx, core.Rule{ID: "new", Enabled: true})
	if err != nil {
		t.Fatalf("SaveRule() unexpected error: %v", err)
	}
	if fresh.Version != 0 {
		t.Errorf("Version = %d, want 0 for a first insert", fresh.Version)
	}
}

func TestCatalogDeleteRuleIsSoft(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	if err := c.DeleteRule(ctx, "adult"); err != nil {
		t.Fatalf("DeleteRule() unexpected error: %v", err)
	}
	if _, err := c.RuleByID(ctx, "adult"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted rule still resolves: %v", err)
	}
	rules, err := c.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() unexpected error: %v", err)
	}
	for _, r := range rules {
		if r.ID == "adult" {
			t.Error("deleted rule still listed")
		}
	}
	// deleting twice is a not-found, not a no-op
	if err := c.DeleteRule(ctx, "adult"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteRule() error = %v, want ErrNotFound", err)
	}
}

func TestCatalogPolicyLifecycle(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	p, err := c.PolicyByID(ctx, "global-open")
	if err != nil {
		t.Fatalf("PolicyByID() unexpected error: %v", err)
	}
	p.Name = "renamed"
	updated, err := c.SavePolicy(ctx, p)
	if err != nil {
		t.Fatalf("SavePolicy() unexpected error: %v", err)
	}
	if updated.Version != p.Version+1 {
		t.Errorf("Version = %d, want %d", updated.Version, p.Version+1)
	}

	if err := c.DeletePolicy(ctx, "global-open"); err != nil {
		t.Fatalf("DeletePolicy() unexpected error: %v", err)
	}
	if _, err := c.PolicyByID(ctx, "global-open"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted policy still resolves: %v", err)
	}
}

func TestCatalogActiveEntitlements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := NewCatalog()
	c.Seed(nil, nil, []core.Entitlement{
		{ID: "e-active", SubjectID: "alice", Status: core.EntitlementActive},
		{ID: "e-suspended", SubjectID: "alice", Status: core.EntitlementSuspended},
		{ID: "e-expired", SubjectID: "alice", Status: core.EntitlementActive, ExpiresAt: &past},
		{ID: "e-not-yet", SubjectID: "alice", Status: core.EntitlementActive, ValidFrom: future},
		{ID: "e-other", SubjectID: "bob", Status: core.EntitlementActive},
	})

	got, err := c.ActiveEntitlements(ctx, "alice", now)
	if err != nil {
		t.Fatalf("ActiveEntitlements() unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e-active" {
		t.Errorf("ActiveEntitlements() = %v, want only e-active", got)
	}
}

func TestCatalogTransitionEntitlement(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	e, err := c.TransitionEntitlement(ctx, "e-1", core.EntitlementSuspended)
	if err != nil {
		t.Fatalf("TransitionEntitlement() unexpected error: %v", err)
	}
	if e.Status != core.EntitlementSuspended || e.Version != 1 {
		t.Errorf("after suspend: status = %s version = %d, want SUSPENDED / 1", e.Status, e.Version)
	}

	// suspended grants may resume
	if _, err := c.TransitionEntitlement(ctx, "e-1", core.EntitlementActive); err != nil {
		t.Fatalf("resume unexpected error: %v", err)
	}

	if _, err := c.TransitionEntitlement(ctx, "e-1", core.EntitlementRevoked); err != nil {
		t.Fatalf("revoke unexpected error: %v", err)
	}
	_, err = c.TransitionEntitlement(ctx, "e-1", core.EntitlementActive)
	var invalid *core.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("transition out of REVOKED error = %v, want InvalidTransitionError", err)
	}

	if _, err := c.TransitionEntitlement(ctx, "e-404", core.EntitlementActive); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown ID error = %v, want ErrNotFound", err)
	}
}

func TestCatalogRevokeEntitlement(t *testing.T) {
	ctx := context.Background()
	c := seededCatalog()

	e, err := c.RevokeEntitlement(ctx, "e-1", "admin-bob")
	if err != nil {
		t.Fatalf("RevokeEntitlement() unexpected error: %v", err)
	}
	if e.Status != core.EntitlementRevoked {
		t.Errorf("Status = %s, want REVOKED", e.Status)
	}
	if e.RevokedBy != "admin-bob" {
		t.Errorf("RevokedBy = %q, want admin-bob", e.RevokedBy)
	}
	if e.Version != 1 {
		t.Errorf("Version = %d, want a single bump", e.Version)
	}

	var invalid *core.InvalidTransitionError
	if _, err := c.RevokeEntitlement(ctx, "e-1", "admin-bob"); !errors.As(err, &invalid) {
		t.Errorf("second revoke error = %v, want InvalidTransitionError", err)
	}
	if _, err := c.RevokeEntitlement(ctx, "e-404", "admin-bob"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown ID error = %v, want ErrNotFound", err)
	}
}

func TestCatalogExpiredEntitlements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	c := NewCatalog()
	c.Seed(nil, nil, []core.Entitlement{
		{ID: "e-overdue", SubjectID: "alice", Status: core.EntitlementActive, ExpiresAt: &past},
		{ID: "e-suspended-overdue", SubjectID: "alice", Status: core.EntitlementSuspended, ExpiresAt: &past},
		{ID: "e-already-expired", SubjectID: "alice", Status: core.EntitlementExpired, ExpiresAt: &past},
		{ID: "e-current", SubjectID: "alice", Status: core.EntitlementActive, ExpiresAt: &future},
		{ID: "e-open-ended", SubjectID: "alice", Status: core.EntitlementActive},
	})

	got, err := c.ExpiredEntitlements(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredEntitlements() unexpected error: %v", err)
	}
	want := []string{"e-overdue", "e-suspended-overdue"}
	if len(got) != len(want) {
		t.Fatalf("got %d overdue grants, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("result[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}
