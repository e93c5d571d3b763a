package core

// ConditionResult captures why a single condition node matched or failed.
type ConditionResult struct {
	Matched bool `json:"matched"`

	// For leaves
	Expression string `json:"expression,omitempty"` // e.g. "tier equals enterprise"
	Reason     string `json:"reason,omitempty"`

	// For branching
	Label    string            `json:"label,omitempty"` // e.g. "AND"
	Children []ConditionResult `json:"children,omitempty"`
}

// RuleResult is the evaluation trace of one rule within a policy.
type RuleResult struct {
	RuleID           string            `json:"rule_id"`
	RuleName         string            `json:"rule_name,omitempty"`
	Matched          bool              `json:"matched"`
	ConditionResults []ConditionResult `json:"condition_results,omitempty"`
}

// PolicyTrace is the evaluation trace of one policy vote.
type PolicyTrace struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name,omitempty"`
	Scope      Scope  `json:"scope"`
	ScopeValue string `json:"scope_value,omitempty"`

	Vote   Outcome `json:"vote"`
	Reason string  `json:"reason,omitempty"`

	// Error is set when evaluation failed and the vote came from the
	// policy's failure mode.
	Error       string      `json:"error,omitempty"`
	FailureMode FailureMode `json:"failure_mode,omitempty"`

	RuleResults []RuleResult `json:"rule_results,omitempty"`
}

// EvaluationTrace is the full record of one authorize evaluation, returned
// by the explain surface.
type EvaluationTrace struct {
	Request    RequestContext `json:"request"`
	ScopeChain []ScopeRef     `json:"-"`
	Policies   []PolicyTrace  `json:"policies"`
	Outcome    Outcome        `json:"outcome"`
	Reason     string         `json:"reason"`
}
