package client

import (
	"context"

	"github.com/custodia-project/custodia/internal/api"
	"github.com/custodia-project/custodia/internal/core"
)

// VerifyChain asks the server to walk and verify one audit chain.
func (c *Client) VerifyChain(ctx context.Context, chainID string) (*core.VerifyResult, string, error) {
	var result core.VerifyResult
	correlation, err := c.get(ctx, c.url().
		setPath(api.VerifyChainRoute).
		setPathParam("chain", chainID).
		build(), &result)
	if err != nil {
		return nil, correlation, err
	}
	return &result, correlation, nil
}

// ChainEntries retrieves entries of one chain starting at fromSeq.
func (c *Client) ChainEntries(ctx context.Context, chainID string, fromSeq uint64, limit int) ([]core.AuditEntry, string, error) {
	ub := c.url().
		setPath(api.ChainEntriesRoute).
		setPathParam("chain", chainID).
		addQueryParam("from", fromSeq)
	if limit > 0 {
		ub = ub.addQueryParam("limit", limit)
	}
	var entries []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &entries)
	return entries, correlation, err
}

// CheckpointChain pins the chain's current tail into a signed checkpoint.
// Requires admin auth.
func (c *Client) CheckpointChain(ctx context.Context, chainID string) (*core.AuditCheckpoint, string, error) {
	var cp core.AuditCheckpoint
	correlation, err := c.post(ctx, c.url().
		setPath(api.CheckpointChainRoute).
		setPathParam("chain", chainID).
		build(), nil, &cp)
	if err != nil {
		return nil, correlation, err
	}
	return &cp, correlation, nil
}

// LatestCheckpoint retrieves the newest checkpoint of a chain and its
// signature verdict.
func (c *Client) LatestCheckpoint(ctx context.Context, chainID string) (*api.CheckpointResponse, string, error) {
	var resp api.CheckpointResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.LatestCheckpointRoute).
		setPathParam("chain", chainID).
		build(), &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}
