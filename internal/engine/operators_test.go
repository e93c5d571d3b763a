package engine

import (
	"testing"

	"github.com/custodia-project/custodia/internal/core"
)

func compileLeafRule(t *testing.T, cond core.Condition) *CompiledRule {
	t.Helper()
	cr, err := Compile(core.Rule{ID: "test", Condition: cond}, nil)
	if err != nil {
		t.Fatalf("Compile() unexpected error: %v", err)
	}
	return cr
}

func TestEvaluateLeafOperators(t *testing.T) {
	tests := []struct {
		name       string
		condition  core.Condition
		attributes map[string]any
		want       bool
		wantErr    bool
	}{
		// --- Equality ---
		{
			name:       "equals - match string",
			condition:  core.Condition{Key: "env", Operator: core.OpEquals, Value: "prod"},
			attributes: map[string]any{"env": "prod"},
			want:       true,
		},
		{
			name:       "equals - mismatch string",
			condition:  core.Condition{Key: "env", Operator: core.OpEquals, Value: "prod"},
			attributes: map[string]any{"env": "dev"},
			want:       false,
		},
		{
			name:       "equals - int vs float64 normalization",
			condition:  core.Condition{Key: "count", Operator: core.OpEquals, Value: 18},
			attributes: map[string]any{"count": float64(18)},
			want:       true,
		},
		{
			name:       "not_equals - match",
			condition:  core.Condition{Key: "role", Operator: core.OpNotEquals, Value: "admin"},
			attributes: map[string]any{"role": "user"},
			want:       true,
		},

		// --- Existence ---
		{
			name:       "exists - true",
			condition:  core.Condition{Key: "secret", Operator: core.OpExists},
			attributes: map[string]any{"secret": "hidden"},
			want:       true,
		},
		{
			name:       "exists - false",
			condition:  core.Condition{Key: "missing", Operator: core.OpExists},
			attributes: map[string]any{"other": "val"},
			want:       false,
		},
		{
			name:       "missing attribute is a clean no-match, not an error",
			condition:  core.Condition{Key: "tier", Operator: core.OpEquals, Value: "gold"},
			attributes: map[string]any{},
			want:       false,
		},

		// --- Dotted paths ---
		{
			name:       "dotted key descends into nested maps",
			condition:  core.Condition{Key: "actor.tier", Operator: core.OpEquals, Value: "enterprise"},
			attributes: map[string]any{"actor": map[string]any{"tier": "enterprise"}},
			want:       true,
		},
		{
			name:       "literal dotted key wins over nested lookup",
			condition:  core.Condition{Key: "actor.tier", Operator: core.OpEquals, Value: "flat"},
			attributes: map[string]any{"actor.tier": "flat"},
			want:       true,
		},

		// --- List logic ---
		{
			name:       "in - value in list",
			condition:  core.Condition{Key: "region", Operator: core.OpIn, Value: []string{"us-east", "eu-west"}},
			attributes: map[string]any{"region": "eu-west"},
			want:       true,
		},
		{
			name:       "in - value not in list",
			condition:  core.Condition{Key: "region", Operator: core.OpIn, Value: []string{"us-east"}},
			attributes: map[string]any{"region": "ap-south"},
			want:       false,
		},
		{
			name:       "not_in - value absent",
			condition:  core.Condition{Key: "region", Operator: core.OpNotIn, Value: []string{"us-east"}},
			attributes: map[string]any{"region": "eu-west"},
			want:       true,
		},
		{
			name:       "contains - list contains item",
			condition:  core.Condition{Key: "groups", Operator: core.OpContains, Value: "admin"},
			attributes: map[string]any{"groups": []string{"user", "admin"}},
			want:       true,
		},
		{
			name:       "contains - string contains substring",
			condition:  core.Condition{Key: "email", Operator: core.OpContains, Value: "@company.com"},
			attributes: map[string]any{"email": "employee@company.com"},
			want:       true,
		},

		// --- Numeric comparisons ---
		{
			name:       "gt - true",
			condition:  core.Condition{Key: "age", Operator: core.OpGT, Value: 18},
			attributes: map[string]any{"age": 21},
			want:       true,
		},
		{
			name:       "gte - boundary is inclusive",
			condition:  core.Condition{Key: "age", Operator: core.OpGTE, Value: 18},
			attributes: map[string]any{"age": 18},
			want:       true,
		},
		{
			name:       "lt - false at boundary",
			condition:  core.Condition{Key: "age", Operator: core.OpLT, Value: 18},
			attributes: map[string]any{"age": 18},
			want:       false,
		},
		{
			name:       "between - inside bounds",
			condition:  core.Condition{Key: "age", Operator: core.OpBetween, Value: []any{18, 65}},
			attributes: map[string]any{"age": 40},
			want:       true,
		},
		{
			name:       "between - below lower bound",
			condition:  core.Condition{Key: "age", Operator: core.OpBetween, Value: []any{18, 65}},
			attributes: map[string]any{"age": 17},
			want:       false,
		},
		{
			name:       "between - bounds are inclusive",
			condition:  core.Condition{Key: "age", Operator: core.OpBetween, Value: []any{18, 65}},
			attributes: map[string]any{"age": 65},
			want:       true,
		},
		{
			name:       "numeric operator on non-numeric context is an error",
			condition:  core.Condition{Key: "age", Operator: core.OpGT, Value: 18},
			attributes: map[string]any{"age": "twenty"},
			wantErr:    true,
		},

		// --- Strings ---
		{
			name:       "regex - match",
			condition:  core.Condition{Key: "branch", Operator: core.OpRegex, Value: "^release/"},
			attributes: map[string]any{"branch": "release/v2"},
			want:       true,
		},
		{
			name:       "regex - context value not a string is an error",
			condition:  core.Condition{Key: "branch", Operator: core.OpRegex, Value: "^release/"},
			attributes: map[string]any{"branch": 42},
			wantErr:    true,
		},
		{
			name:       "starts_with - match",
			condition:  core.Condition{Key: "path", Operator: core.OpStarts, Value: "/api/"},
			attributes: map[string]any{"path": "/api/v1/users"},
			want:       true,
		},
		{
			name:       "ends_with - no match",
			condition:  core.Condition{Key: "host", Operator: core.OpEnds, Value: ".internal"},
			attributes: map[string]any{"host": "db.external"},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := compileLeafRule(t, tt.condition)

			matched, res, err := cr.Evaluate(EvalInput{Attributes: tt.attributes})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Evaluate() expected error, got matched=%v", matched)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() unexpected error: %v", err)
			}
			if matched != tt.want {
				t.Errorf("Evaluate() matched = %v, want %v. Reason: %s", matched, tt.want, res.Reason)
			}
		})
	}
}

func TestCompileRejectsBadOperands(t *testing.T) {
	tests := []struct {
		name      string
		condition core.Condition
	}{
		{
			name:      "regex operand not a string",
			condition: core.Condition{Key: "x", Operator: core.OpRegex, Value: 42},
		},
		{
			name:      "regex operand does not compile",
			condition: core.Condition{Key: "x", Operator: core.OpRegex, Value: "("},
		},
		{
			name:      "between operand not a pair",
			condition: core.Condition{Key: "x", Operator: core.OpBetween, Value: []any{1}},
		},
		{
			name:      "between bounds inverted",
			condition: core.Condition{Key: "x", Operator: core.OpBetween, Value: []any{65, 18}},
		},
		{
			name:      "in operand not a list",
			condition: core.Condition{Key: "x", Operator: core.OpIn, Value: "not-a-list"},
		},
		{
			name:      "gt operand not numeric",
			condition: core.Condition{Key: "x", Operator: core.OpGT, Value: "many"},
		},
		{
			name:      "unknown operator",
			condition: core.Condition{Key: "x", Operator: "fuzzy_match", Value: "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(core.Rule{ID: "bad", Condition: tt.condition}, nil)
			if err == nil {
				t.Errorf("Compile() expected error for %s", tt.name)
			}
		})
	}
}
