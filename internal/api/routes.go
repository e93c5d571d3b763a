package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/icanhazcustodia"

	AuthorizeRoute = "/v1/authorize"

	DecisionsParent    = "/v1/decisions"
	ListDecisionsRoute = DecisionsParent
	GetDecisionRoute   = DecisionsParent + "/{id}"

	AuditParent           = "/v1/audit/"
	VerifyChainRoute      = AuditParent + "chains/{chain}/verify"
	ChainEntriesRoute     = AuditParent + "chains/{chain}/entries"
	LatestCheckpointRoute = AuditParent + "chains/{chain}/checkpoint"

	// admin routes, mounted behind JWT auth
	AdminParent          = "/v1/admin/"
	CheckpointChainRoute = AdminParent + "audit/chains/{chain}/checkpoint"

	AdminPoliciesRoute = AdminParent + "policies"
	AdminPolicyRoute   = AdminParent + "policies/{id}"
	AdminRulesRoute    = AdminParent + "rules"
	AdminRuleRoute     = AdminParent + "rules/{id}"

	AdminEntitlementsRoute      = AdminParent + "entitlements"
	AdminEntitlementActionRoute = AdminParent + "entitlements/{id}/{action}"

	TaskParent       = AdminParent + "tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
	LogsForTaskRoute = TaskParent + "{name}/logs"
)
