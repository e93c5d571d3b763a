package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
)

// EntitlementAdminStore is the write surface the admin operations need on
// top of the engine's read-only entitlement view.
type EntitlementAdminStore interface {
	core.EntitlementStore
	SaveEntitlement(ctx context.Context, e core.Entitlement) (core.Entitlement, error)
	// RevokeEntitlement transitions to REVOKED and records the revoking
	// actor in the same versioned change, so the audited state is exactly
	// the persisted one.
	RevokeEntitlement(ctx context.Context, id, revokedBy string) (core.Entitlement, error)
}

// EntitlementService administers grants. Every lifecycle change lands in the
// audit ledger; grants are always chained globally since they are not tied
// to a single request's tenant.
type EntitlementService struct {
	store  EntitlementAdminStore
	ledger core.AuditLedger
}

func NewEntitlementService(store EntitlementAdminStore, ledger core.AuditLedger) *EntitlementService {
	return &EntitlementService{store: store, ledger: ledger}
}

// GrantRequest creates a new grant. It starts PENDING unless Activate is set.
type GrantRequest struct {
	Name        string     `json:"name"`
	SubjectID   string     `json:"subject_id"`
	SubjectType string     `json:"subject_type,omitempty"`
	ResourceID  string     `json:"resource_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Activate    bool       `json:"activate,omitempty"`

	GrantedBy string `json:"granted_by"`
}

func (s *EntitlementService) Grant(ctx context.Context, req GrantRequest) (core.Entitlement, error) {
	if req.Name == "" || req.SubjectID == "" {
		return core.Entitlement{}, httpError(http.StatusBadRequest,
			fmt.Errorf("grant requires name and subject_id"))
	}

	e := core.Entitlement{
		ID:          xid.New().String(),
		Name:        req.Name,
		SubjectID:   req.SubjectID,
		SubjectType: req.SubjectType,
		ResourceID:  req.ResourceID,
		Status:      core.EntitlementPending,
		ValidFrom:   time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
		GrantedBy:   req.GrantedBy,
	}
	if req.Activate {
		e.Status = core.EntitlementActive
	}

	saved, err := s.store.SaveEntitlement(ctx, e)
	if err != nil {
		return core.Entitlement{}, err
	}

	s.record(ctx, core.AuditGrant, saved, req.GrantedBy, "")
	return saved, nil
}

func (s *EntitlementService) Activate(ctx context.Context, change EntitlementChange) (core.Entitlement, error) {
	return s.transition(ctx, change, core.EntitlementActive, core.AuditGrant)
}

func (s *EntitlementService) Suspend(ctx context.Context, change EntitlementChange) (core.Entitlement, error) {
	return s.transition(ctx, change, core.EntitlementSuspended, core.AuditSuspend)
}

func (s *EntitlementService) Revoke(ctx context.Context, change EntitlementChange) (core.Entitlement, error) {
	e, err := s.store.RevokeEntitlement(ctx, change.EntitlementID, change.ActorID)
	if err != nil {
		return core.Entitlement{}, mapEntitlementErr(err)
	}

	s.record(ctx, core.AuditRevoke, e, change.ActorID, change.Reason)
	return e, nil
}

func (s *EntitlementService) List(ctx context.Context) ([]core.Entitlement, error) {
	return s.store.ListEntitlements(ctx)
}

func (s *EntitlementService) transition(
	ctx context.Context,
	change EntitlementChange,
	to core.EntitlementStatus,
	action core.AuditAction,
) (core.Entitlement, error) {
	e, err := s.store.TransitionEntitlement(ctx, change.EntitlementID, to)
	if err != nil {
		return core.Entitlement{}, mapEntitlementErr(err)
	}

	s.record(ctx, action, e, change.ActorID, change.Reason)
	return e, nil
}

func mapEntitlementErr(err error) error {
	var invalid *core.InvalidTransitionError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return httpError(http.StatusNotFound, err)
	case errors.As(err, &invalid):
		return httpError(http.StatusConflict, err)
	default:
		return err
	}
}

// record appends the grant change to the global chain. Failure to audit an
// administrative change is logged, not fatal: unlike decisions, grants have
// no pending state to park in.
func (s *EntitlementService) record(ctx context.Context, action core.AuditAction, e core.Entitlement, actorID, reason string) {
	payload := core.AuditPayload{
		Action:     action,
		EntityType: "entitlement",
		EntityID:   e.ID,
		ActorID:    actorID,
		Reason:     reason,
		Detail: map[string]string{
			"name":       e.Name,
			"subject_id": e.SubjectID,
			"status":     string(e.Status),
		},
	}
	if _, err := s.ledger.Append(ctx, GlobalChainID, payload); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("entitlement_id", e.ID).
			Str("action", string(action)).
			Msg("failed to audit entitlement change")
	}
}
