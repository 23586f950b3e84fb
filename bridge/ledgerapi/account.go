package ledgerapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/opendlt/actionlog/types/ledger"
)

// AccountInfo is the on-chain account resource summary
type AccountInfo struct {
	SequenceNumber    uint64
	AuthenticationKey string
}

type accountResponse struct {
	SequenceNumber    string `json:"sequence_number"`
	AuthenticationKey string `json:"authentication_key"`
}

// Account fetches the account's current state. Nothing is cached; every
// call reflects the node's latest view.
func (c *Client) Account(ctx context.Context, addr ledger.Address) (*AccountInfo, error) {
	if addr.IsZero() {
		return nil, fmt.Errorf("account address cannot be zero")
	}

	var resp accountResponse
	err := c.executeWithRetry(ctx, func(base string) error {
		return c.do(ctx, base, http.MethodGet, "/v1/accounts/"+addr.String(), nil, "", &resp)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("account %s: %w", addr, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("account query failed: %w", err)
	}

	seq, err := strconv.ParseUint(resp.SequenceNumber, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number %q for %s: %w", resp.SequenceNumber, addr, err)
	}

	return &AccountInfo{SequenceNumber: seq, AuthenticationKey: resp.AuthenticationKey}, nil
}

// SequenceNumber returns the next sequence number the account must use
func (c *Client) SequenceNumber(ctx context.Context, addr ledger.Address) (uint64, error) {
	info, err := c.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return info.SequenceNumber, nil
}
