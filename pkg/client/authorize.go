package client

import (
	"context"

	"github.com/custodia-project/custodia/internal/api"
	"github.com/custodia-project/custodia/internal/service"
)

// Authorize asks the server whether actor may perform action on resource.
func (c *Client) Authorize(
	ctx context.Context,
	req service.AuthorizeRequest,
) (*service.AuthorizeResponse, string, error) {
	ub := c.url().setPath(api.AuthorizeRoute)
	if req.Explain {
		ub = ub.addQueryParam("explain", "true")
	}

	var resp service.AuthorizeResponse
	correlation, err := c.post(ctx, ub.build(), req, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}
