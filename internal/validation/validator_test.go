package validation

import (
	"strings"
	"testing"

	"github.com/custodia-project/custodia/internal/core"
)

func leaf(key string) core.Condition {
	return core.Condition{Key: key, Operator: core.OpExists}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []core.Rule
		wantErr string
	}{
		{
			name: "valid set",
			rules: []core.Rule{
				{ID: "a", Condition: leaf("x")},
				{ID: "b", Condition: core.Condition{RuleRef: "a"}},
			},
		},
		{
			name:    "missing id",
			rules:   []core.Rule{{Condition: leaf("x")}},
			wantErr: "missing id",
		},
		{
			name: "duplicate id",
			rules: []core.Rule{
				{ID: "a", Condition: leaf("x")},
				{ID: "a", Condition: leaf("y")},
			},
			wantErr: "not unique",
		},
		{
			name:    "invalid condition",
			rules:   []core.Rule{{ID: "a", Condition: core.Condition{Key: "x", Operator: "almost"}}},
			wantErr: "invalid operator",
		},
		{
			name:    "unknown rule_ref",
			rules:   []core.Rule{{ID: "a", Condition: core.Condition{RuleRef: "ghost"}}},
			wantErr: "unknown rule",
		},
		{
			name:    "self reference",
			rules:   []core.Rule{{ID: "a", Condition: core.Condition{RuleRef: "a"}}},
			wantErr: "cycle",
		},
		{
			name: "two rule cycle",
			rules: []core.Rule{
				{ID: "a", Condition: core.Condition{RuleRef: "b"}},
				{ID: "b", Condition: core.Condition{RuleRef: "a"}},
			},
			wantErr: "cycle",
		},
		{
			name: "cycle through a combinator",
			rules: []core.Rule{
				{ID: "a", Condition: core.Condition{All: []core.Condition{leaf("x"), {RuleRef: "b"}}}},
				{ID: "b", Condition: core.Condition{Not: &core.Condition{RuleRef: "a"}}},
			},
			wantErr: "cycle",
		},
		{
			name: "diamond is not a cycle",
			rules: []core.Rule{
				{ID: "base", Condition: leaf("x")},
				{ID: "left", Condition: core.Condition{RuleRef: "base"}},
				{ID: "right", Condition: core.Condition{RuleRef: "base"}},
				{ID: "top", Condition: core.Condition{All: []core.Condition{{RuleRef: "left"}, {RuleRef: "right"}}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRules(tt.rules)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateRules() unexpected error: %v", err)
				}
				if len(got) != len(tt.rules) {
					t.Errorf("returned %d rules, want %d", len(got), len(tt.rules))
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateRules() accepted an invalid set")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePolicies(t *testing.T) {
	rules := []core.Rule{{ID: "adult", Condition: leaf("age")}}
	valid := core.Policy{ID: "p", Scope: core.ScopeGlobal, FailureMode: core.FailClosed, RuleIDs: []string{"adult"}}

	tests := []struct {
		name     string
		policies []core.Policy
		wantErr  string
	}{
		{name: "valid", policies: []core.Policy{valid}},
		{name: "missing id", policies: []core.Policy{{Scope: core.ScopeGlobal, FailureMode: core.FailClosed}}, wantErr: "missing id"},
		{name: "duplicate id", policies: []core.Policy{valid, valid}, wantErr: "not unique"},
		{
			name:     "unknown rule",
			policies: []core.Policy{{ID: "p", Scope: core.ScopeGlobal, FailureMode: core.FailClosed, RuleIDs: []string{"ghost"}}},
			wantErr:  "unknown rule",
		},
		{
			name:     "scoped policy without value",
			policies: []core.Policy{{ID: "p", Scope: core.ScopeTeam, FailureMode: core.FailClosed}},
			wantErr:  "scope_value",
		},
		{
			name:     "global policy with value",
			policies: []core.Policy{{ID: "p", Scope: core.ScopeGlobal, ScopeValue: "x", FailureMode: core.FailClosed}},
			wantErr:  "must not set scope_value",
		},
		{
			name:     "invalid failure mode",
			policies: []core.Policy{{ID: "p", Scope: core.ScopeGlobal, FailureMode: "FAIL_MAYBE"}},
			wantErr:  "failure_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePolicies(tt.policies, rules)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidatePolicies() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidatePolicies() accepted an invalid set")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEntitlements(t *testing.T) {
	tests := []struct {
		name         string
		entitlements []core.Entitlement
		wantErr      string
	}{
		{
			name:         "valid",
			entitlements: []core.Entitlement{{ID: "e", SubjectID: "alice", Status: core.EntitlementActive}},
		},
		{
			name:         "missing id",
			entitlements: []core.Entitlement{{SubjectID: "alice", Status: core.EntitlementActive}},
			wantErr:      "missing id",
		},
		{
			name: "duplicate id",
			entitlements: []core.Entitlement{
				{ID: "e", SubjectID: "alice", Status: core.EntitlementActive},
				{ID: "e", SubjectID: "bob", Status: core.EntitlementActive},
			},
			wantErr: "not unique",
		},
		{
			name:         "missing subject",
			entitlements: []core.Entitlement{{ID: "e", Status: core.EntitlementActive}},
			wantErr:      "subject_id",
		},
		{
			name:         "missing status",
			entitlements: []core.Entitlement{{ID: "e", SubjectID: "alice"}},
			wantErr:      "missing status",
		},
		{
			name:         "unknown status",
			entitlements: []core.Entitlement{{ID: "e", SubjectID: "alice", Status: "DORMANT"}},
			wantErr:      "unknown status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntitlements(tt.entitlements)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateEntitlements() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateEntitlements() accepted an invalid set")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
