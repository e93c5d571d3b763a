package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/engine"
)

// DecisionService runs evaluations and records their outcomes. Recording is
// write-ahead: the decision is saved in PENDING, its audit entry appended,
// and only then does the state flip to APPROVED or DENIED. A crash between
// the steps leaves a PENDING decision that the recovery sweep re-commits, so
// a committed decision without an audit entry cannot exist.
type DecisionService struct {
	resolver  *engine.Resolver
	decisions core.DecisionStore
	ledger    core.AuditLedger
	dimension ChainDimension
}

func NewDecisionService(
	resolver *engine.Resolver,
	decisions core.DecisionStore,
	ledger core.AuditLedger,
	dimension ChainDimension,
) *DecisionService {
	if !dimension.IsValid() {
		dimension = ChainByTenant
	}
	return &DecisionService{
		resolver:  resolver,
		decisions: decisions,
		ledger:    ledger,
		dimension: dimension,
	}
}

func (s *DecisionService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	logger := log.Ctx(ctx)

	rc := core.RequestContext{
		Actor:      req.Actor,
		Resource:   req.Resource,
		Action:     req.Action,
		Attributes: req.Context,
	}

	decision, trace := s.resolver.Authorize(ctx, rc)

	// write-ahead: PENDING first
	if err := s.decisions.SaveDecision(ctx, decision); err != nil {
		return nil, httpError(http.StatusInternalServerError,
			fmt.Errorf("recording decision: %w", err))
	}

	var hints core.ScopeHints
	_ = mapstructure.Decode(req.Context, &hints)
	chainID := ChainIDFor(s.dimension, hints)

	resp := &AuthorizeResponse{
		DecisionID:        decision.ID,
		Timestamp:         decision.CreatedAt,
		Outcome:           decision.Outcome,
		Reason:            decision.Reason,
		PoliciesEvaluated: decision.PoliciesEvaluated,
		LatencyMS:         decision.LatencyMS,
		FailureMode:       decision.FailureMode,
		ValidFrom:         decision.ValidFrom,
		ExpiresAt:         decision.ExpiresAt,
		ChainID:           chainID,
	}
	if req.Explain {
		resp.Trace = trace
	}

	entry, err := s.ledger.Append(ctx, chainID, evaluatePayload(decision))
	if err != nil {
		// decision stays PENDING; the recovery sweep re-appends and commits
		logger.Error().Err(err).
			Str("decision_id", decision.ID).
			Str("chain_id", chainID).
			Msg("audit append failed, decision left pending for recovery")
		resp.State = decision.State
		return resp, nil
	}
	seq := entry.Sequence
	resp.AuditSequence = &seq

	committed := decision.CommittedState()
	if err := s.decisions.TransitionDecision(ctx, decision.ID, core.DecisionPending, committed); err != nil {
		logger.Error().Err(err).Str("decision_id", decision.ID).Msg("decision commit failed")
		resp.State = core.DecisionPending
		return resp, nil
	}
	resp.State = committed

	return resp, nil
}

func evaluatePayload(d core.Decision) core.AuditPayload {
	detail := map[string]string{
		"policies":   strings.Join(d.PoliciesEvaluated, ","),
		"latency_ms": strconv.FormatInt(d.LatencyMS, 10),
		"action":     d.Action,
		"resource":   d.Resource,
	}
	if d.FailureMode != "" {
		detail["failure_mode"] = string(d.FailureMode)
	}
	return core.AuditPayload{
		Action:     core.AuditEvaluate,
		EntityType: "decision",
		EntityID:   d.ID,
		ActorID:    d.Actor,
		Outcome:    string(d.Outcome),
		Reason:     d.Reason,
		Detail:     detail,
	}
}

func (s *DecisionService) DecisionByID(ctx context.Context, id string) (core.Decision, error) {
	d, err := s.decisions.DecisionByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Decision{}, httpError(http.StatusNotFound, err)
	}
	return d, err
}
