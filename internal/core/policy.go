package core

import (
	"fmt"
	"time"
)

// Scope is the level at which a policy applies.
type Scope string

const (
	ScopeGlobal       Scope = "GLOBAL"
	ScopeOrganization Scope = "ORGANIZATION"
	ScopeTeam         Scope = "TEAM"
	ScopeUser         Scope = "USER"
	ScopeResource     Scope = "RESOURCE"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeOrganization, ScopeTeam, ScopeUser, ScopeResource:
		return true
	default:
		return false
	}
}

// Specificity ranks scopes for policy resolution; lower is more specific.
// RESOURCE beats USER beats TEAM beats ORGANIZATION beats GLOBAL.
func (s Scope) Specificity() int {
	switch s {
	case ScopeResource:
		return 0
	case ScopeUser:
		return 1
	case ScopeTeam:
		return 2
	case ScopeOrganization:
		return 3
	default:
		return 4
	}
}

// ScopeRef identifies one level of the scope chain, e.g. {RESOURCE, "repo:billing"}.
// GLOBAL has an empty value.
type ScopeRef struct {
	Kind  Scope
	Value string
}

// FailureMode governs how a policy resolves evaluation *errors*. It never
// applies when rules evaluate cleanly to no-match; clean no-match is a DENY
// vote regardless of mode.
type FailureMode string

const (
	FailClosed FailureMode = "FAIL_CLOSED"
	FailOpen   FailureMode = "FAIL_OPEN"
)

func (m FailureMode) IsValid() bool {
	return m == FailClosed || m == FailOpen
}

// Policy bundles an ordered list of rule references with enforcement metadata.
type Policy struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Scope      Scope  `yaml:"scope" json:"scope"`
	ScopeValue string `yaml:"scope_value,omitempty" json:"scope_value,omitempty"`

	Enabled     bool        `yaml:"enabled" json:"enabled"`
	FailureMode FailureMode `yaml:"failure_mode" json:"failure_mode"`

	// Priority breaks ties between policies of equal scope specificity when
	// the resolver is configured for priority tie-breaking; lower wins.
	Priority int `yaml:"priority" json:"priority"`

	// RuleIDs is the ordered rule list. An empty list is an allow-all
	// policy: it votes ALLOW for every request in its scope.
	RuleIDs []string `yaml:"rule_ids" json:"rule_ids"`

	// ValidFor, when non-zero, makes ALLOW decisions from this policy
	// time-bound: the decision carries a validity window of this length and
	// moves through ACTIVE to EXPIRED via the sweep.
	ValidFor time.Duration `yaml:"valid_for,omitempty" json:"valid_for,omitempty"`

	Version int  `yaml:"version,omitempty" json:"version"`
	Deleted bool `yaml:"-" json:"deleted,omitempty"`
}

// Matches reports whether the policy applies to the given scope reference.
func (p Policy) Matches(ref ScopeRef) bool {
	if p.Scope != ref.Kind {
		return false
	}
	if p.Scope == ScopeGlobal {
		return true
	}
	return p.ScopeValue == ref.Value
}

func (p Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy missing id")
	}
	if !p.Scope.IsValid() {
		return fmt.Errorf("policy '%s' has invalid scope '%s'", p.ID, p.Scope)
	}
	if p.Scope != ScopeGlobal && p.ScopeValue == "" {
		return fmt.Errorf("policy '%s' with scope %s requires a scope_value", p.ID, p.Scope)
	}
	if p.Scope == ScopeGlobal && p.ScopeValue != "" {
		return fmt.Errorf("policy '%s' with GLOBAL scope must not set scope_value", p.ID)
	}
	if !p.FailureMode.IsValid() {
		return fmt.Errorf("policy '%s' has invalid failure_mode '%s'", p.ID, p.FailureMode)
	}
	return nil
}
