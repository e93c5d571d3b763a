package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/custodia-project/custodia/internal/core"
)

func TestEvaluateCombinators(t *testing.T) {
	tests := []struct {
		name       string
		condition  core.Condition
		attributes map[string]any
		want       bool
	}{
		{
			name: "all - every child passes",
			condition: core.Condition{
				All: []core.Condition{
					{Key: "a", Operator: core.OpEquals, Value: 1},
					{Key: "b", Operator: core.OpEquals, Value: 2},
				},
			},
			attributes: map[string]any{"a": 1, "b": 2},
			want:       true,
		},
		{
			name: "all - one child fails",
			condition: core.Condition{
				All: []core.Condition{
					{Key: "a", Operator: core.OpEquals, Value: 1},
					{Key: "b", Operator: core.OpEquals, Value: 999},
				},
			},
			attributes: map[string]any{"a": 1, "b": 2},
			want:       false,
		},
		{
			name: "any - one child passes",
			condition: core.Condition{
				Any: []core.Condition{
					{Key: "a", Operator: core.OpEquals, Value: 999},
					{Key: "b", Operator: core.OpEquals, Value: 2},
				},
			},
			attributes: map[string]any{"a": 1, "b": 2},
			want:       true,
		},
		{
			name: "not - inverts",
			condition: core.Condition{
				Not: &core.Condition{Key: "role", Operator: core.OpEquals, Value: "admin"},
			},
			attributes: map[string]any{"role": "user"},
			want:       true,
		},
		{
			name: "nested - (a=1 OR b=2) AND c=3",
			condition: core.Condition{
				All: []core.Condition{
					{
						Any: []core.Condition{
							{Key: "a", Operator: core.OpEquals, Value: 1},
							{Key: "b", Operator: core.OpEquals, Value: 2},
						},
					},
					{Key: "c", Operator: core.OpEquals, Value: 3},
				},
			},
			attributes: map[string]any{"a": 99, "b": 2, "c": 3},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr, err := Compile(core.Rule{ID: "test", Condition: tt.condition}, nil)
			if err != nil {
				t.Fatalf("Compile() unexpected error: %v", err)
			}
			matched, res, err := cr.Evaluate(EvalInput{Attributes: tt.attributes})
			if err != nil {
				t.Fatalf("Evaluate() unexpected error: %v", err)
			}
			if matched != tt.want {
				t.Errorf("Evaluate() matched = %v, want %v. Reason: %s", matched, tt.want, res.Reason)
			}
		})
	}
}

// Short-circuiting must stop at the first decisive child: the trace then only
// contains the children that actually ran. A type error hiding behind a
// decisive sibling must not surface.
func TestEvaluateShortCircuit(t *testing.T) {
	cond := core.Condition{
		Any: []core.Condition{
			{Key: "role", Operator: core.OpEquals, Value: "admin"},
			{Key: "age", Operator: core.OpGT, Value: 18}, // would error: age is a string
		},
	}
	cr, err := Compile(core.Rule{ID: "test", Condition: cond}, nil)
	if err != nil {
		t.Fatalf("Compile() unexpected error: %v", err)
	}

	matched, res, err := cr.Evaluate(EvalInput{
		Attributes: map[string]any{"role": "admin", "age": "not-a-number"},
	})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}
	if !matched {
		t.Errorf("Evaluate() matched = false, want true")
	}
	if len(res.Children) != 1 {
		t.Errorf("trace has %d children, want 1 (second child must not have run)", len(res.Children))
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cond := core.Condition{
		All: []core.Condition{
			{Key: "tier", Operator: core.OpEquals, Value: "enterprise"},
			{Key: "age", Operator: core.OpBetween, Value: []any{18, 65}},
		},
	}
	cr, err := Compile(core.Rule{ID: "test", Condition: cond}, nil)
	if err != nil {
		t.Fatalf("Compile() unexpected error: %v", err)
	}

	in := EvalInput{Attributes: map[string]any{"tier": "enterprise", "age": 40}}

	_, first, err := cr.Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		_, again, err := cr.Evaluate(in)
		if err != nil {
			t.Fatalf("Evaluate() unexpected error: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("trace differs between identical evaluations (-first +again):\n%s", diff)
		}
	}
}

func TestCompileRuleRef(t *testing.T) {
	rules := map[string]core.Rule{
		"is-adult": {
			ID:        "is-adult",
			Enabled:   true,
			Condition: core.Condition{Key: "age", Operator: core.OpGTE, Value: 18},
		},
	}

	cond := core.Condition{
		All: []core.Condition{
			{RuleRef: "is-adult"},
			{Key: "tier", Operator: core.OpEquals, Value: "gold"},
		},
	}
	cr, err := Compile(core.Rule{ID: "outer", Condition: cond}, rules)
	if err != nil {
		t.Fatalf("Compile() unexpected error: %v", err)
	}

	matched, _, err := cr.Evaluate(EvalInput{Attributes: map[string]any{"age": 30, "tier": "gold"}})
	if err != nil {
		t.Fatalf("Evaluate() unexpected error: %v", err)
	}
	if !matched {
		t.Errorf("Evaluate() matched = false, want true")
	}
}

func TestCompileRuleRefErrors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		_, err := Compile(core.Rule{
			ID:        "outer",
			Condition: core.Condition{RuleRef: "no-such-rule"},
		}, nil)
		var structural *core.StructuralRuleError
		if !errors.As(err, &structural) {
			t.Fatalf("Compile() error = %v, want StructuralRuleError", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		rules := map[string]core.Rule{
			"a": {ID: "a", Condition: core.Condition{RuleRef: "b"}},
			"b": {ID: "b", Condition: core.Condition{RuleRef: "a"}},
		}
		_, err := Compile(rules["a"], rules)
		if err == nil {
			t.Fatal("Compile() expected cycle error, got nil")
		}
	})

	t.Run("self reference", func(t *testing.T) {
		rules := map[string]core.Rule{
			"a": {ID: "a", Condition: core.Condition{RuleRef: "a"}},
		}
		_, err := Compile(rules["a"], rules)
		if err == nil {
			t.Fatal("Compile() expected cycle error, got nil")
		}
	})
}

func TestEvaluateEntitlementLeaf(t *testing.T) {
	now := time.Now()
	cr, err := Compile(core.Rule{
		ID:        "needs-premium",
		Condition: core.Condition{Entitlement: "premium-features"},
	}, nil)
	if err != nil {
		t.Fatalf("Compile() unexpected error: %v", err)
	}
	if !cr.NeedsEntitlements() {
		t.Error("NeedsEntitlements() = false, want true")
	}

	tests := []struct {
		name         string
		entitlements []core.Entitlement
		want         bool
	}{
		{
			name: "active matching grant",
			entitlements: []core.Entitlement{
				{Name: "premium-features", Status: core.EntitlementActive},
			},
			want: true,
		},
		{
			name: "suspended grant does not count",
			entitlements: []core.Entitlement{
				{Name: "premium-features", Status: core.EntitlementSuspended},
			},
			want: false,
		},
		{
			name: "grant scoped to another resource does not count",
			entitlements: []core.Entitlement{
				{Name: "premium-features", Status: core.EntitlementActive, ResourceID: "repo:other"},
			},
			want: false,
		},
		{
			name:         "no grants at all",
			entitlements: nil,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, _, err := cr.Evaluate(EvalInput{
				Resource:     "repo:core",
				Entitlements: tt.entitlements,
				At:           now,
			})
			if err != nil {
				t.Fatalf("Evaluate() unexpected error: %v", err)
			}
			if matched != tt.want {
				t.Errorf("Evaluate() matched = %v, want %v", matched, tt.want)
			}
		})
	}
}

func TestBrokenRuleEvaluatesToStructuralError(t *testing.T) {
	snap := BuildSnapshot(
		[]core.Policy{{
			ID: "p1", Name: "p1", Scope: core.ScopeGlobal, Enabled: true,
			FailureMode: core.FailClosed,
			RuleIDs:     []string{"dangling"},
		}},
		nil, // rule set does not contain "dangling"
	)

	policies := snap.Policies()
	if len(policies) != 1 || len(policies[0].Rules) != 1 {
		t.Fatalf("snapshot shape unexpected: %+v", policies)
	}

	_, _, err := policies[0].Rules[0].Evaluate(EvalInput{})
	var structural *core.StructuralRuleError
	if !errors.As(err, &structural) {
		t.Fatalf("Evaluate() error = %v, want StructuralRuleError", err)
	}
}
