package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/api/middleware"
	"github.com/custodia-project/custodia/internal/api/presenter"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/service"
	"github.com/custodia-project/custodia/internal/validation"
)

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.catalog.ListPolicies(r.Context())
	if err != nil {
		presenter.Err(w, r, err, "failed to list policies")
		return
	}
	presenter.JSON(w, r, policies, http.StatusOK)
}

// handlePutPolicy upserts a policy and recompiles the engine snapshot.
func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var policy core.Policy
	if err := DecodePayload(r, &policy, false); err != nil {
		presenter.Error(w, r, "invalid policy payload", http.StatusBadRequest)
		return
	}
	policy.ID = r.PathValue("id")
	if err := policy.Validate(); err != nil {
		presenter.Error(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.catalog.SavePolicy(ctx, policy)
	if err != nil {
		presenter.Err(w, r, err, "failed to save policy")
		return
	}
	if err := s.refreshSnapshot(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to refresh engine snapshot after policy change")
	}
	presenter.JSON(w, r, saved, http.StatusOK)
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.catalog.DeletePolicy(ctx, r.PathValue("id")); err != nil {
		presenter.Err(w, r, err, "failed to delete policy")
		return
	}
	if err := s.refreshSnapshot(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to refresh engine snapshot after policy delete")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.catalog.ListRules(r.Context())
	if err != nil {
		presenter.Err(w, r, err, "failed to list rules")
		return
	}
	presenter.JSON(w, r, rules, http.StatusOK)
}

func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule core.Rule
	if err := DecodePayload(r, &rule, false); err != nil {
		presenter.Error(w, r, "invalid rule payload", http.StatusBadRequest)
		return
	}
	rule.ID = r.PathValue("id")

	// validate against the whole rule set: a dangling or cyclic rule_ref is
	// rejected here, not left for the snapshot compiler to quarantine
	existing, err := s.catalog.ListRules(ctx)
	if err != nil {
		presenter.Err(w, r, err, "failed to load rule set")
		return
	}
	merged := make([]core.Rule, 0, len(existing)+1)
	replaced := false
	for _, cur := range existing {
		if cur.ID == rule.ID {
			merged = append(merged, rule)
			replaced = true
			continue
		}
		merged = append(merged, cur)
	}
	if !replaced {
		merged = append(merged, rule)
	}
	if _, err := validation.ValidateRules(merged); err != nil {
		presenter.Error(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.catalog.SaveRule(ctx, rule)
	if err != nil {
		presenter.Err(w, r, err, "failed to save rule")
		return
	}
	if err := s.refreshSnapshot(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to refresh engine snapshot after rule change")
	}
	presenter.JSON(w, r, saved, http.StatusOK)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.catalog.DeleteRule(ctx, r.PathValue("id")); err != nil {
		presenter.Err(w, r, err, "failed to delete rule")
		return
	}
	if err := s.refreshSnapshot(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to refresh engine snapshot after rule delete")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	entitlements, err := s.entitlements.List(r.Context())
	if err != nil {
		presenter.Err(w, r, err, "failed to list entitlements")
		return
	}
	presenter.JSON(w, r, entitlements, http.StatusOK)
}

func (s *Server) handleGrantEntitlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.GrantRequest
	if err := DecodePayload(r, &req, false); err != nil {
		presenter.Error(w, r, "invalid grant payload", http.StatusBadRequest)
		return
	}
	if req.GrantedBy == "" {
		req.GrantedBy = middleware.SubjectCtx(ctx)
	}

	e, err := s.entitlements.Grant(ctx, req)
	if err != nil {
		presenter.Err(w, r, err, "failed to grant entitlement")
		return
	}
	presenter.JSON(w, r, e, http.StatusCreated)
}

// handleEntitlementAction moves a grant through its lifecycle: activate,
// suspend, or revoke.
func (s *Server) handleEntitlementAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	change := service.EntitlementChange{
		EntitlementID: r.PathValue("id"),
		ActorID:       middleware.SubjectCtx(ctx),
		Reason:        r.URL.Query().Get("reason"),
	}

	var (
		e   core.Entitlement
		err error
	)
	switch action := r.PathValue("action"); action {
	case "activate":
		e, err = s.entitlements.Activate(ctx, change)
	case "suspend":
		e, err = s.entitlements.Suspend(ctx, change)
	case "revoke":
		e, err = s.entitlements.Revoke(ctx, change)
	default:
		presenter.Error(w, r, "unknown entitlement action '"+action+"'", http.StatusBadRequest)
		return
	}
	if err != nil {
		presenter.Err(w, r, err, "entitlement action failed")
		return
	}
	presenter.JSON(w, r, e, http.StatusOK)
}
