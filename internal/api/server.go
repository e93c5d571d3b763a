package api

import (
	"context"
	"net/http"

	"github.com/custodia-project/custodia/internal/api/middleware"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/engine"
	"github.com/custodia-project/custodia/internal/service"
	"github.com/custodia-project/custodia/internal/tasks"
)

// CatalogAdmin is the store surface behind the admin rule/policy routes.
type CatalogAdmin interface {
	core.RuleStore
	core.PolicyStore
	SaveRule(ctx context.Context, r core.Rule) (core.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error)
	DeletePolicy(ctx context.Context, id string) error
}

type Server struct {
	engineManager *engine.Manager
	taskManager   *tasks.Manager
	catalog       CatalogAdmin

	decisions    *service.DecisionService
	entitlements *service.EntitlementService
	audits       *service.AuditService
}

func NewServer(
	engineManager *engine.Manager,
	taskManager *tasks.Manager,
	catalog CatalogAdmin,
	decisions *service.DecisionService,
	entitlements *service.EntitlementService,
	audits *service.AuditService,
) *Server {
	return &Server{
		engineManager: engineManager,
		taskManager:   taskManager,
		catalog:       catalog,
		decisions:     decisions,
		entitlements:  entitlements,
		audits:        audits,
	}
}

func (s *Server) Routes(adminSigningKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)

	// decision routes
	mux.HandleFunc("POST "+AuthorizeRoute, s.handleAuthorize)
	mux.HandleFunc("GET "+ListDecisionsRoute, s.handleListDecisions)
	mux.HandleFunc("GET "+GetDecisionRoute, s.handleGetDecision)

	// audit read surface
	mux.HandleFunc("GET "+VerifyChainRoute, s.handleVerifyChain)
	mux.HandleFunc("GET "+ChainEntriesRoute, s.handleChainEntries)
	mux.HandleFunc("GET "+LatestCheckpointRoute, s.handleLatestCheckpoint)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("POST "+CheckpointChainRoute, s.handleCheckpointChain)
	adminMux.HandleFunc("GET "+AdminPoliciesRoute, s.handleListPolicies)
	adminMux.HandleFunc("PUT "+AdminPolicyRoute, s.handlePutPolicy)
	adminMux.HandleFunc("DELETE "+AdminPolicyRoute, s.handleDeletePolicy)
	adminMux.HandleFunc("GET "+AdminRulesRoute, s.handleListRules)
	adminMux.HandleFunc("PUT "+AdminRuleRoute, s.handlePutRule)
	adminMux.HandleFunc("DELETE "+AdminRuleRoute, s.handleDeleteRule)
	adminMux.HandleFunc("GET "+AdminEntitlementsRoute, s.handleListEntitlements)
	adminMux.HandleFunc("POST "+AdminEntitlementsRoute, s.handleGrantEntitlement)
	adminMux.HandleFunc("POST "+AdminEntitlementActionRoute, s.handleEntitlementAction)
	adminMux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	adminMux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
	adminMux.HandleFunc("GET "+LogsForTaskRoute, s.handleLogsForTask)
	mux.Handle(AdminParent, middleware.AdminAuth(adminSigningKey)(adminMux))

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}

// refreshSnapshot recompiles the engine view after an admin catalog change.
func (s *Server) refreshSnapshot(ctx context.Context) error {
	rules, err := s.catalog.ListRules(ctx)
	if err != nil {
		return err
	}
	policies, err := s.catalog.ListPolicies(ctx)
	if err != nil {
		return err
	}
	s.engineManager.Update(policies, rules)
	return nil
}
