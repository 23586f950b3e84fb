package ledgerapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/opendlt/actionlog/types/ledger"
)

type submitResponse struct {
	Hash string `json:"hash"`
}

// Submit posts a signed transaction and returns the hash the node assigned.
// Resubmitting identical bytes is idempotent on the node side.
func (c *Client) Submit(ctx context.Context, st *ledger.SignedTransaction) (string, error) {
	if st == nil {
		return "", fmt.Errorf("signed transaction cannot be nil")
	}

	body, err := st.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode signed transaction: %w", err)
	}

	var resp submitResponse
	err = c.executeWithRetry(ctx, func(base string) error {
		return c.do(ctx, base, http.MethodPost, "/v1/transactions", body, contentTypeSignedTx, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("submit failed: %w", err)
	}

	if resp.Hash == "" {
		// Fall back to the locally computed hash; it is what the node would report
		hash, err := st.Hash()
		if err != nil {
			return "", fmt.Errorf("no transaction hash returned from submission: %w", err)
		}
		c.logger.Warn("Node returned no hash for sequence %d, using local hash %s", st.Raw.SequenceNumber, hash)
		return hash, nil
	}

	c.logger.Debug("Submitted transaction %s (sender %s, sequence %d)", resp.Hash, st.Raw.Sender, st.Raw.SequenceNumber)
	return resp.Hash, nil
}
