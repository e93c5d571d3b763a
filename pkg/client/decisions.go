package client

import (
	"context"
	"time"

	"github.com/custodia-project/custodia/internal/api"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/service"
)

type ListDecisionsOpts struct {
	Actor    string
	Resource string
	Outcome  string
	From     time.Time
	To       time.Time

	Limit  int
	Offset int
}

// ListDecisions retrieves one page of recorded decisions.
func (c *Client) ListDecisions(ctx context.Context, opts ListDecisionsOpts) (*service.ExportPage, string, error) {
	ub := c.url().setPath(api.ListDecisionsRoute)
	if opts.Actor != "" {
		ub = ub.addQueryParam("actor", opts.Actor)
	}
	if opts.Resource != "" {
		ub = ub.addQueryParam("resource", opts.Resource)
	}
	if opts.Outcome != "" {
		ub = ub.addQueryParam("outcome", opts.Outcome)
	}
	if !opts.From.IsZero() {
		ub = ub.addQueryParam("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		ub = ub.addQueryParam("to", opts.To.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		ub = ub.addQueryParam("limit", opts.Limit)
	}
	if opts.Offset > 0 {
		ub = ub.addQueryParam("offset", opts.Offset)
	}

	var page service.ExportPage
	correlation, err := c.get(ctx, ub.build(), &page)
	if err != nil {
		return nil, correlation, err
	}
	return &page, correlation, nil
}

func (c *Client) GetDecision(ctx context.Context, id string) (*core.Decision, string, error) {
	var d core.Decision
	correlation, err := c.get(ctx, c.url().
		setPath(api.GetDecisionRoute).
		setPathParam("id", id).
		build(), &d)
	if err != nil {
		return nil, correlation, err
	}
	return &d, correlation, nil
}
