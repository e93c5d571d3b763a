package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/custodia-project/custodia/internal/audit"
	"github.com/custodia-project/custodia/internal/core"
)

// AuditService exposes the read and verification surface of the ledger.
type AuditService struct {
	ledger       core.AuditLedger
	entries      core.AuditEntryStore
	checkpointer *audit.Checkpointer
	checkpoints  core.CheckpointStore
}

func NewAuditService(
	ledger core.AuditLedger,
	entries core.AuditEntryStore,
	checkpointer *audit.Checkpointer,
	checkpoints core.CheckpointStore,
) *AuditService {
	return &AuditService{
		ledger:       ledger,
		entries:      entries,
		checkpointer: checkpointer,
		checkpoints:  checkpoints,
	}
}

func (s *AuditService) Verify(ctx context.Context, chainID string) (core.VerifyResult, error) {
	return s.ledger.Verify(ctx, chainID)
}

// Entries pages through one chain in sequence order.
func (s *AuditService) Entries(ctx context.Context, chainID string, fromSeq uint64, limit int) ([]core.AuditEntry, error) {
	if limit <= 0 || limit > maxExportLimit {
		limit = defaultExportLimit
	}
	return s.entries.EntriesFrom(ctx, chainID, fromSeq, limit)
}

func (s *AuditService) Checkpoint(ctx context.Context, chainID, actorID string) (core.AuditCheckpoint, error) {
	cp, err := s.checkpointer.Checkpoint(ctx, chainID, actorID)
	if errors.Is(err, core.ErrNotFound) {
		return core.AuditCheckpoint{}, httpError(http.StatusNotFound, err)
	}
	return cp, err
}

// LatestCheckpoint returns the newest checkpoint of a chain together with
// its signature verdict.
func (s *AuditService) LatestCheckpoint(ctx context.Context, chainID string) (core.AuditCheckpoint, bool, error) {
	cp, err := s.checkpoints.LatestCheckpoint(ctx, chainID)
	if errors.Is(err, core.ErrNotFound) {
		return core.AuditCheckpoint{}, false, httpError(http.StatusNotFound, err)
	}
	if err != nil {
		return core.AuditCheckpoint{}, false, err
	}
	return cp, s.checkpointer.VerifyCheckpoint(cp), nil
}
