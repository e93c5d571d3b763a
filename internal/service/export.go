package service

import (
	"context"
	"net/http"

	"github.com/custodia-project/custodia/internal/core"
)

const (
	defaultExportLimit = 100
	maxExportLimit     = 1000
)

// Export returns one page of recorded decisions. Ordering is by decision ID
// ascending (creation order); paging with a fixed filter covers the full
// result set without duplicates or gaps.
func (s *DecisionService) Export(ctx context.Context, req ExportRequest) (*ExportPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultExportLimit
	}
	if limit > maxExportLimit {
		limit = maxExportLimit
	}
	if req.Offset < 0 {
		return nil, httpError(http.StatusBadRequest, errNegativeOffset)
	}

	// fetch one extra row to learn whether a further page exists
	decisions, err := s.decisions.ListDecisions(ctx, core.DecisionFilter{
		Actor:    req.Actor,
		Resource: req.Resource,
		Outcome:  req.Outcome,
		From:     req.From,
		To:       req.To,
		Limit:    limit + 1,
		Offset:   req.Offset,
	})
	if err != nil {
		return nil, err
	}

	page := &ExportPage{
		Limit:  limit,
		Offset: req.Offset,
	}
	if len(decisions) > limit {
		page.HasMore = true
		decisions = decisions[:limit]
	}
	page.Decisions = decisions
	return page, nil
}
