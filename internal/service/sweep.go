package service

import (
	"context"
	"time"

	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/logging"
	"github.com/custodia-project/custodia/internal/tasks"
)

const sweepBatchSize = 200

// pendingGracePeriod keeps the recovery sweep from racing an authorize call
// that is still between its save and its commit.
const pendingGracePeriod = 30 * time.Second

// ExpiredEntitlementLister is the extra read the entitlement sweep needs.
type ExpiredEntitlementLister interface {
	ExpiredEntitlements(ctx context.Context, at time.Time) ([]core.Entitlement, error)
}

// Sweeper drives the background lifecycle work: activating and expiring
// time-bound decisions, expiring entitlements, and recovering decisions
// stranded in PENDING by a failed audit append.
type Sweeper struct {
	decisions    core.DecisionStore
	entitlements core.EntitlementStore
	expired      ExpiredEntitlementLister
	ledger       core.AuditLedger

	now func() time.Time
}

func NewSweeper(
	decisions core.DecisionStore,
	entitlements core.EntitlementStore,
	expired ExpiredEntitlementLister,
	ledger core.AuditLedger,
) *Sweeper {
	return &Sweeper{
		decisions:    decisions,
		entitlements: entitlements,
		expired:      expired,
		ledger:       ledger,
		now:          time.Now,
	}
}

// Register wires the sweeps into the task manager.
func (s *Sweeper) Register(manager *tasks.Manager) {
	manager.Register("decision-lifecycle", time.Minute, s.SweepDecisions)
	manager.Register("entitlement-expiry", time.Minute, s.SweepEntitlements)
	manager.Register("pending-recovery", 5*time.Minute, s.RecoverPending)
}

// SweepDecisions activates APPROVED decisions whose window has opened and
// expires ACTIVE decisions whose window has closed.
func (s *Sweeper) SweepDecisions(ctx context.Context, logger logging.InternalLogger) error {
	now := s.now()

	approved, err := s.decisions.DecisionsInState(ctx, core.DecisionApproved, sweepBatchSize)
	if err != nil {
		return err
	}
	activated := 0
	for _, d := range approved {
		if d.ValidFrom == nil || d.ValidFrom.After(now) {
			continue
		}
		if err := s.decisions.TransitionDecision(ctx, d.ID, core.DecisionApproved, core.DecisionActive); err != nil {
			logger.Warn("failed to activate decision %s: %v", d.ID, err)
			continue
		}
		s.recordLifecycle(ctx, logger, core.AuditActivate, d)
		activated++
	}

	active, err := s.decisions.DecisionsInState(ctx, core.DecisionActive, sweepBatchSize)
	if err != nil {
		return err
	}
	expired := 0
	for _, d := range active {
		if d.ExpiresAt == nil || d.ExpiresAt.After(now) {
			continue
		}
		if err := s.decisions.TransitionDecision(ctx, d.ID, core.DecisionActive, core.DecisionExpired); err != nil {
			logger.Warn("failed to expire decision %s: %v", d.ID, err)
			continue
		}
		s.recordLifecycle(ctx, logger, core.AuditExpire, d)
		expired++
	}

	logger.Info("decision sweep: %d activated, %d expired", activated, expired)
	return nil
}

// SweepEntitlements moves grants past their window into EXPIRED.
func (s *Sweeper) SweepEntitlements(ctx context.Context, logger logging.InternalLogger) error {
	lapsed, err := s.expired.ExpiredEntitlements(ctx, s.now())
	if err != nil {
		return err
	}
	count := 0
	for _, e := range lapsed {
		if _, err := s.entitlements.TransitionEntitlement(ctx, e.ID, core.EntitlementExpired); err != nil {
			logger.Warn("failed to expire entitlement %s: %v", e.ID, err)
			continue
		}
		payload := core.AuditPayload{
			Action:     core.AuditEntExpire,
			EntityType: "entitlement",
			EntityID:   e.ID,
			ActorID:    "system",
			Detail:     map[string]string{"name": e.Name, "subject_id": e.SubjectID},
		}
		if _, err := s.ledger.Append(ctx, GlobalChainID, payload); err != nil {
			logger.Warn("failed to audit entitlement expiry %s: %v", e.ID, err)
		}
		count++
	}
	logger.Info("entitlement sweep: %d expired", count)
	return nil
}

// RecoverPending re-commits decisions stranded in PENDING by a failed audit
// append. Recovered entries land on the global chain: the request's scope
// hints are not persisted with the decision, and a late entry on the right
// chain would break that chain's append-order anyway.
func (s *Sweeper) RecoverPending(ctx context.Context, logger logging.InternalLogger) error {
	pending, err := s.decisions.DecisionsInState(ctx, core.DecisionPending, sweepBatchSize)
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-pendingGracePeriod)
	recovered := 0
	for _, d := range pending {
		if d.CreatedAt.After(cutoff) {
			// possibly still mid-commit, leave for the next run
			continue
		}

		payload := evaluatePayload(d)
		payload.Action = core.AuditRecover
		if _, err := s.ledger.Append(ctx, GlobalChainID, payload); err != nil {
			logger.Error("failed to append recovery audit entry for decision %s: %v", d.ID, err)
			continue
		}
		if err := s.decisions.TransitionDecision(ctx, d.ID, core.DecisionPending, d.CommittedState()); err != nil {
			logger.Error("failed to commit recovered decision %s: %v", d.ID, err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		logger.Warn("pending recovery: %d decisions re-committed", recovered)
	} else {
		logger.Info("pending recovery: nothing to do")
	}
	return nil
}

func (s *Sweeper) recordLifecycle(ctx context.Context, logger logging.InternalLogger, action core.AuditAction, d core.Decision) {
	payload := core.AuditPayload{
		Action:     action,
		EntityType: "decision",
		EntityID:   d.ID,
		ActorID:    "system",
		Outcome:    string(d.Outcome),
		Detail:     map[string]string{"actor": d.Actor, "resource": d.Resource},
	}
	if _, err := s.ledger.Append(ctx, GlobalChainID, payload); err != nil {
		logger.Warn("failed to audit decision lifecycle change %s: %v", d.ID, err)
	}
}
