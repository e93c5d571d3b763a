package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/api/middleware"
	"github.com/custodia-project/custodia/internal/api/presenter"
	"github.com/custodia-project/custodia/internal/core"
)

// handleVerifyChain walks a chain and reports its integrity.
func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain")
	if chainID == "" {
		presenter.Error(w, r, "missing chain id", http.StatusBadRequest)
		return
	}

	result, err := s.audits.Verify(r.Context(), chainID)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("chain_id", chainID).Msg("chain verification failed")
		presenter.Err(w, r, err, "chain verification failed")
		return
	}
	presenter.JSON(w, r, result, http.StatusOK)
}

// handleChainEntries pages through one chain's entries in sequence order.
func (s *Server) handleChainEntries(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain")
	if chainID == "" {
		presenter.Error(w, r, "missing chain id", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	var fromSeq uint64
	if raw := q.Get("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			presenter.Error(w, r, "invalid from parameter", http.StatusBadRequest)
			return
		}
		fromSeq = v
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
		return
	}

	entries, err := s.audits.Entries(r.Context(), chainID, fromSeq, limit)
	if err != nil {
		presenter.Err(w, r, err, "failed to retrieve audit entries")
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	presenter.JSON(w, r, entries, http.StatusOK)
}

// CheckpointResponse pairs a checkpoint with its signature verdict.
type CheckpointResponse struct {
	Checkpoint core.AuditCheckpoint `json:"checkpoint"`
	Valid      bool                 `json:"valid"`
}

// handleCheckpointChain pins the chain's current tail into a checkpoint.
func (s *Server) handleCheckpointChain(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain")
	if chainID == "" {
		presenter.Error(w, r, "missing chain id", http.StatusBadRequest)
		return
	}

	actorID := middleware.CorrelationCtx(r.Context())
	if sub := middleware.SubjectCtx(r.Context()); sub != "" {
		actorID = sub
	}

	cp, err := s.audits.Checkpoint(r.Context(), chainID, actorID)
	if err != nil {
		presenter.Err(w, r, err, "failed to create checkpoint")
		return
	}
	presenter.JSON(w, r, cp, http.StatusCreated)
}

// handleLatestCheckpoint returns the newest checkpoint of a chain.
func (s *Server) handleLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chain")
	if chainID == "" {
		presenter.Error(w, r, "missing chain id", http.StatusBadRequest)
		return
	}

	cp, valid, err := s.audits.LatestCheckpoint(r.Context(), chainID)
	if err != nil {
		presenter.Err(w, r, err, "failed to retrieve checkpoint")
		return
	}
	presenter.JSON(w, r, CheckpointResponse{Checkpoint: cp, Valid: valid}, http.StatusOK)
}
