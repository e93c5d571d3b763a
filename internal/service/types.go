package service

import (
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

// AuthorizeRequest is one authorization question.
type AuthorizeRequest struct {
	Actor    string         `json:"actor"`
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	Context  map[string]any `json:"context,omitempty"`

	// Explain attaches the full evaluation trace to the response.
	Explain bool `json:"explain,omitempty"`
}

// AuthorizeResponse is the committed decision. AuditSequence is the position
// of the decision's ledger entry within its chain.
type AuthorizeResponse struct {
	DecisionID string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`

	Outcome core.Outcome `json:"outcome"`
	Reason  string       `json:"reason"`

	PoliciesEvaluated []string `json:"policies_evaluated"`
	LatencyMS         int64    `json:"latency_ms"`

	FailureMode core.FailureMode `json:"failure_mode,omitempty"`

	State     core.DecisionState `json:"state"`
	ValidFrom *time.Time         `json:"valid_from,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`

	ChainID       string  `json:"chain_id,omitempty"`
	AuditSequence *uint64 `json:"audit_sequence,omitempty"`

	Trace *core.EvaluationTrace `json:"trace,omitempty"`
}

// ExportRequest selects and pages decisions.
type ExportRequest struct {
	Actor    string
	Resource string
	Outcome  core.Outcome
	From     time.Time
	To       time.Time

	Limit  int
	Offset int
}

// ExportPage is one page of decisions; HasMore signals the caller to fetch
// the next offset.
type ExportPage struct {
	Decisions []core.Decision `json:"decisions"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	HasMore   bool            `json:"has_more"`
}

// EntitlementChange is an administrative grant lifecycle operation.
type EntitlementChange struct {
	EntitlementID string `json:"entitlement_id"`
	// ActorID is the administrator performing the change, for the audit trail.
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}
