package ledgerapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/types/ledger"
)

// StatusQuerier looks up a transaction by hash
type StatusQuerier interface {
	TransactionStatus(ctx context.Context, hash string) (*ledger.TxStatus, error)
}

type transactionResponse struct {
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
	Version  string `json:"version"`
	GasUsed  string `json:"gas_used"`
}

// TransactionStatus returns one observation of a transaction. A hash the node
// does not know yet is reported with Found=false and no error.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	if hash == "" {
		return nil, fmt.Errorf("transaction hash cannot be empty")
	}

	var resp transactionResponse
	err := c.executeWithRetry(ctx, func(base string) error {
		return c.do(ctx, base, http.MethodGet, "/v1/transactions/by_hash/"+hash, nil, "", &resp)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return &ledger.TxStatus{Hash: hash, Status: ledger.StatusPending}, nil
		}
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}

	st := &ledger.TxStatus{Hash: hash, Found: true, VMStatus: resp.VMStatus}
	switch resp.Type {
	case "pending_transaction":
		st.Status = ledger.StatusPending
		return st, nil
	case "user_transaction":
		if resp.Success {
			st.Status = ledger.StatusConfirmed
		} else {
			st.Status = ledger.StatusRejected
		}
	default:
		return nil, fmt.Errorf("unexpected transaction type %q for %s", resp.Type, hash)
	}

	if resp.Version != "" {
		if st.Version, err = strconv.ParseUint(resp.Version, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid version %q for %s: %w", resp.Version, hash, err)
		}
	}
	if resp.GasUsed != "" {
		if st.GasUsed, err = strconv.ParseUint(resp.GasUsed, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid gas used %q for %s: %w", resp.GasUsed, hash, err)
		}
	}
	return st, nil
}

// AwaitConfirmation polls q until hash is CONFIRMED or REJECTED. If timeout
// elapses first the result is EXPIRED with a nil error: the transaction may
// still land later. Polling errors are logged and polling continues. If ctx
// ends first the result is EXPIRED and ctx.Err() is returned.
func AwaitConfirmation(ctx context.Context, q StatusQuerier, hash string, pollInterval, timeout time.Duration) (*ledger.SubmissionResult, error) {
	if pollInterval <= 0 || timeout <= 0 {
		return nil, fmt.Errorf("%w: poll interval and timeout must be positive", ledger.ErrInvalidParameters)
	}

	logger := logz.DefaultLogger().WithPrefix("confirm")
	start := time.Now()
	result := &ledger.SubmissionResult{Hash: hash, Status: ledger.StatusPending}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result.Polls++
		st, err := q.TransactionStatus(ctx, hash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				result.Status = ledger.StatusExpired
				result.Elapsed = time.Since(start)
				return result, ctx.Err()
			}
			logger.Debug("Status poll %d for %s failed: %v", result.Polls, hash, err)
		case st.Found && st.Status.Terminal():
			result.Status = st.Status
			result.VMStatus = st.VMStatus
			result.Version = st.Version
			result.GasUsed = st.GasUsed
			result.Elapsed = time.Since(start)
			return result, nil
		}

		select {
		case <-ctx.Done():
			result.Status = ledger.StatusExpired
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		case <-deadline.C:
			result.Status = ledger.StatusExpired
			result.Elapsed = time.Since(start)
			return result, nil
		case <-ticker.C:
		}
	}
}

// AwaitConfirmation polls this client until hash reaches a terminal status or timeout elapses
func (c *Client) AwaitConfirmation(ctx context.Context, hash string, pollInterval, timeout time.Duration) (*ledger.SubmissionResult, error) {
	return AwaitConfirmation(ctx, c, hash, pollInterval, timeout)
}
