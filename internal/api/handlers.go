package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/api/presenter"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/service"
)

func DecodePayload(r *http.Request, dest any, allowEmpty bool) error {
	switch r.Header.Get("Content-Type") {
	case "application/json", "":
		// strict encoding for JSON
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dest); err != nil {
			if !errors.Is(err, io.EOF) || !allowEmpty {
				return err
			}
		}
		// ensure there's no extra data
		if dec.More() {
			return errors.New("extra data in request body")
		}
		return nil
	default:
		return errors.New("unsupported content type")
	}
}

// handleAuthorize evaluates one authorization request and records the
// decision.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	var payload service.AuthorizeRequest
	if err := DecodePayload(r, &payload, false); err != nil {
		logger.Warn().Err(err).Msg("failed to decode authorize request payload")
		presenter.Error(w, r, "invalid request payload", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("explain") == "true" {
		payload.Explain = true
	}

	resp, err := s.decisions.Authorize(ctx, payload)
	if err != nil {
		logger.Error().Err(err).Msg("authorize failed")
		presenter.Err(w, r, err, "authorize failed")
		return
	}

	presenter.JSON(w, r, resp, http.StatusOK)
}

// handleListDecisions exports recorded decisions with filters and paging.
func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	q := r.URL.Query()
	req := service.ExportRequest{
		Actor:    q.Get("actor"),
		Resource: q.Get("resource"),
		Outcome:  core.Outcome(q.Get("outcome")),
	}

	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	if req.Offset, err = intParam(q.Get("offset")); err != nil {
		presenter.Error(w, r, "invalid offset parameter", http.StatusBadRequest)
		return
	}
	if req.From, err = timeParam(q.Get("from")); err != nil {
		presenter.Error(w, r, "invalid from parameter", http.StatusBadRequest)
		return
	}
	if req.To, err = timeParam(q.Get("to")); err != nil {
		presenter.Error(w, r, "invalid to parameter", http.StatusBadRequest)
		return
	}

	page, err := s.decisions.Export(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("failed to export decisions")
		presenter.Err(w, r, err, "failed to export decisions")
		return
	}
	presenter.JSON(w, r, page, http.StatusOK)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		presenter.Error(w, r, "missing decision id", http.StatusBadRequest)
		return
	}

	d, err := s.decisions.DecisionByID(r.Context(), id)
	if err != nil {
		presenter.Err(w, r, err, "failed to retrieve decision")
		return
	}
	presenter.JSON(w, r, d, http.StatusOK)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func timeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
