package core

// RequestContext is the input to one authorization evaluation.
type RequestContext struct {
	Actor    string `json:"actor"`
	Resource string `json:"resource"`
	Action   string `json:"action"`

	// Attributes is the free-form request context consulted by rule
	// conditions (and, via mapstructure, by scope-hint extraction).
	Attributes map[string]any `json:"context,omitempty"`
}

// ScopeHints are the well-known attribute keys used to build the scope chain
// and to partition audit chains. They are decoded from Attributes.
type ScopeHints struct {
	TenantID string `mapstructure:"tenant_id"`
	OrgID    string `mapstructure:"org_id"`
	TeamID   string `mapstructure:"team_id"`
}

// ScopeChain returns the candidate scopes for this request, most specific
// first: RESOURCE, USER, TEAM, ORGANIZATION, GLOBAL. Levels without a value
// in the request are skipped (GLOBAL is always present).
func (rc RequestContext) ScopeChain(hints ScopeHints) []ScopeRef {
	chain := make([]ScopeRef, 0, 5)
	if rc.Resource != "" {
		chain = append(chain, ScopeRef{Kind: ScopeResource, Value: rc.Resource})
	}
	if rc.Actor != "" {
		chain = append(chain, ScopeRef{Kind: ScopeUser, Value: rc.Actor})
	}
	if hints.TeamID != "" {
		chain = append(chain, ScopeRef{Kind: ScopeTeam, Value: hints.TeamID})
	}
	if hints.OrgID != "" {
		chain = append(chain, ScopeRef{Kind: ScopeOrganization, Value: hints.OrgID})
	}
	chain = append(chain, ScopeRef{Kind: ScopeGlobal})
	return chain
}
