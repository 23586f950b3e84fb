package ledgerapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// LedgerInfo is the node's view of the chain
type LedgerInfo struct {
	ChainID         uint8
	LedgerVersion   uint64
	LedgerTimestamp uint64
}

type ledgerInfoResponse struct {
	ChainID         uint8  `json:"chain_id"`
	LedgerVersion   string `json:"ledger_version"`
	LedgerTimestamp string `json:"ledger_timestamp"`
}

// LedgerInfo queries the ledger root endpoint
func (c *Client) LedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	var resp ledgerInfoResponse
	err := c.executeWithRetry(ctx, func(base string) error {
		return c.do(ctx, base, http.MethodGet, "/v1", nil, "", &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger info query failed: %w", err)
	}

	info := &LedgerInfo{ChainID: resp.ChainID}
	if resp.LedgerVersion != "" {
		if info.LedgerVersion, err = strconv.ParseUint(resp.LedgerVersion, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid ledger version %q: %w", resp.LedgerVersion, err)
		}
	}
	if resp.LedgerTimestamp != "" {
		if info.LedgerTimestamp, err = strconv.ParseUint(resp.LedgerTimestamp, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid ledger timestamp %q: %w", resp.LedgerTimestamp, err)
		}
	}
	return info, nil
}

type gasEstimateResponse struct {
	GasEstimate uint64 `json:"gas_estimate"`
}

// EstimateGasPrice returns the node's suggested gas unit price
func (c *Client) EstimateGasPrice(ctx context.Context) (uint64, error) {
	var resp gasEstimateResponse
	err := c.executeWithRetry(ctx, func(base string) error {
		return c.do(ctx, base, http.MethodGet, "/v1/estimate_gas_price", nil, "", &resp)
	})
	if err != nil {
		return 0, fmt.Errorf("gas price estimate failed: %w", err)
	}
	if resp.GasEstimate == 0 {
		return 0, fmt.Errorf("node returned zero gas estimate")
	}
	return resp.GasEstimate, nil
}

// IsHealthy checks if the node is reachable
func (c *Client) IsHealthy(ctx context.Context) error {
	_, err := c.LedgerInfo(ctx)
	return err
}
