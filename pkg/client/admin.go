package client

import (
	"context"

	"github.com/custodia-project/custodia/internal/api"
	"github.com/custodia-project/custodia/internal/core"
	"github.com/custodia-project/custodia/internal/service"
)

// ListPolicies retrieves all policies. Requires admin auth.
func (c *Client) ListPolicies(ctx context.Context) ([]core.Policy, error) {
	var res []core.Policy
	_, err := c.get(ctx, c.url().
		setPath(api.AdminPoliciesRoute).
		build(), &res)
	return res, err
}

// ListRules retrieves all rules. Requires admin auth.
func (c *Client) ListRules(ctx context.Context) ([]core.Rule, error) {
	var res []core.Rule
	_, err := c.get(ctx, c.url().
		setPath(api.AdminRulesRoute).
		build(), &res)
	return res, err
}

// ListEntitlements retrieves all grants. Requires admin auth.
func (c *Client) ListEntitlements(ctx context.Context) ([]core.Entitlement, error) {
	var res []core.Entitlement
	_, err := c.get(ctx, c.url().
		setPath(api.AdminEntitlementsRoute).
		build(), &res)
	return res, err
}

// GrantEntitlement creates a new grant. Requires admin auth.
func (c *Client) GrantEntitlement(ctx context.Context, req service.GrantRequest) (*core.Entitlement, string, error) {
	var e core.Entitlement
	correlation, err := c.post(ctx, c.url().
		setPath(api.AdminEntitlementsRoute).
		build(), req, &e)
	if err != nil {
		return nil, correlation, err
	}
	return &e, correlation, nil
}

// EntitlementAction moves a grant through its lifecycle; action is one of
// "activate", "suspend", "revoke". Requires admin auth.
func (c *Client) EntitlementAction(ctx context.Context, id, action, reason string) (*core.Entitlement, string, error) {
	ub := c.url().
		setPath(api.AdminEntitlementActionRoute).
		setPathParam("id", id).
		setPathParam("action", action)
	if reason != "" {
		ub = ub.addQueryParam("reason", reason)
	}
	var e core.Entitlement
	correlation, err := c.post(ctx, ub.build(), nil, &e)
	if err != nil {
		return nil, correlation, err
	}
	return &e, correlation, nil
}
