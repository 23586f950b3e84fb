package ledgerapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/types/ledger"
)

func newTestClient(t *testing.T, urls ...string) *Client {
	t.Helper()
	cfg := DefaultClientConfig(urls...)
	cfg.Timeout = 2 * time.Second
	cfg.RetryDelay = time.Millisecond
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedTx(t *testing.T, seq uint64) *ledger.SignedTransaction {
	t.Helper()
	s := signer.NewDevKeySigner()
	module := ledger.ModuleID{Address: ledger.MustParseAddress("0xcafe"), Name: "ai_trading_log"}
	payload, err := ledger.EncodeEntryFunction(module, "log_trade", []any{"test action"})
	require.NoError(t, err)
	raw, err := ledger.Assemble(ledger.EnvelopeParams{
		Sender:         s.Address(),
		SequenceNumber: seq,
		Payload:        payload,
		MaxGasAmount:   1000,
		GasUnitPrice:   100,
		TTL:            time.Minute,
		ChainID:        2,
	})
	require.NoError(t, err)
	st, err := s.SignTransaction(raw)
	require.NoError(t, err)
	return st
}

func TestSequenceNumber(t *testing.T) {
	addr := ledger.MustParseAddress("0xa11ce")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/"+addr.String(), r.URL.Path)
		assert.Equal(t, "actionlog/1.0", r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, map[string]string{"sequence_number": "7", "authentication_key": addr.String()})
	}))
	defer srv.Close()

	seq, err := newTestClient(t, srv.URL).SequenceNumber(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
}

func TestSequenceNumberAccountNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message":    "Account not found by Address(0xa11ce)",
			"error_code": "account_not_found",
		})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).SequenceNumber(context.Background(), ledger.MustParseAddress("0xa11ce"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NotErrorIs(t, err, ErrNetworkUnavailable)
}

func TestNetworkUnavailableFailsOver(t *testing.T) {
	var downHits, upHits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upHits.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"sequence_number": "3"})
	}))
	defer up.Close()

	c := newTestClient(t, down.URL, up.URL)
	seq, err := c.SequenceNumber(context.Background(), ledger.MustParseAddress("0x1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	assert.Equal(t, int32(1), downHits.Load())
	assert.Equal(t, int32(1), upHits.Load())
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).SequenceNumber(context.Background(), ledger.MustParseAddress("0x1"))
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestSubmit(t *testing.T) {
	st := signedTx(t, 7)
	want, err := st.Bytes()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, contentTypeSignedTx, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, want, body)
		writeJSON(w, http.StatusAccepted, map[string]string{"hash": "0xabc"})
	}))
	defer srv.Close()

	hash, err := newTestClient(t, srv.URL).Submit(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestSubmitFallsBackToLocalHash(t *testing.T) {
	st := signedTx(t, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]string{})
	}))
	defer srv.Close()

	hash, err := newTestClient(t, srv.URL).Submit(context.Background(), st)
	require.NoError(t, err)
	local, err := st.Hash()
	require.NoError(t, err)
	assert.Equal(t, local, hash)
}

func TestSubmitErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"too old", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 3, "message": "Invalid transaction: Type: Validation Code: SEQUENCE_NUMBER_TOO_OLD"}, ErrSequenceMismatch},
		{"too new", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 4}, ErrSequenceMismatch},
		{"too old code", 400, map[string]any{"error_code": "sequence_number_too_old"}, ErrSequenceMismatch},
		{"no balance", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 5}, ErrInsufficientGas},
		{"gas below min", 400, map[string]any{"error_code": "vm_error", "message": "MAX_GAS_UNITS_BELOW_MIN_TRANSACTION_GAS_UNITS"}, ErrInsufficientGas},
		{"gas above max", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 15}, ErrNetworkRejected},
		{"gas above max message", 400, map[string]any{"error_code": "vm_error", "message": "MAX_GAS_UNITS_EXCEEDS_MAX_GAS_UNITS_BOUND"}, ErrNetworkRejected},
		{"expired", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 6}, ErrExpired},
		{"mempool full", 400, map[string]any{"error_code": "mempool_is_full"}, ErrNetworkUnavailable},
		{"rate limited", 429, map[string]any{"message": "slow down"}, ErrNetworkUnavailable},
		{"bad signature", 400, map[string]any{"error_code": "vm_error", "vm_error_code": 1, "message": "INVALID_SIGNATURE"}, ErrNetworkRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Submit(context.Background(), signedTx(t, 1))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
		})
	}
}

func TestMaybeDelivered(t *testing.T) {
	assert.True(t, MaybeDelivered(unavailable("/v1/transactions", io.ErrUnexpectedEOF)))
	assert.True(t, MaybeDelivered(&APIError{StatusCode: 502}))
	assert.False(t, MaybeDelivered(&APIError{StatusCode: 429}))
	assert.False(t, MaybeDelivered(&APIError{StatusCode: 503, ErrorCode: "mempool_is_full"}))
	assert.False(t, MaybeDelivered(&APIError{StatusCode: 400, VMErrorCode: 3}))
	assert.False(t, MaybeDelivered(nil))
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream gone"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).LedgerInfo(context.Background())
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "upstream gone")
}

func TestTransactionStatus(t *testing.T) {
	responses := map[string]func(w http.ResponseWriter){
		"/v1/transactions/by_hash/0xpending": func(w http.ResponseWriter) {
			writeJSON(w, 200, map[string]any{"type": "pending_transaction", "hash": "0xpending"})
		},
		"/v1/transactions/by_hash/0xok": func(w http.ResponseWriter) {
			writeJSON(w, 200, map[string]any{"type": "user_transaction", "success": true, "vm_status": "Executed successfully", "version": "99", "gas_used": "12"})
		},
		"/v1/transactions/by_hash/0xfail": func(w http.ResponseWriter) {
			writeJSON(w, 200, map[string]any{"type": "user_transaction", "success": false, "vm_status": "Move abort"})
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := responses[r.URL.Path]; ok {
			fn(w)
			return
		}
		writeJSON(w, 404, map[string]any{"error_code": "transaction_not_found"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	st, err := c.TransactionStatus(ctx, "0xpending")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.Equal(t, ledger.StatusPending, st.Status)

	st, err = c.TransactionStatus(ctx, "0xok")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, st.Status)
	assert.Equal(t, uint64(99), st.Version)
	assert.Equal(t, uint64(12), st.GasUsed)

	st, err = c.TransactionStatus(ctx, "0xfail")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRejected, st.Status)
	assert.Equal(t, "Move abort", st.VMStatus)

	st, err = c.TransactionStatus(ctx, "0xunknown")
	require.NoError(t, err)
	assert.False(t, st.Found)
}

func TestAwaitConfirmationResolves(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			writeJSON(w, 200, map[string]any{"type": "pending_transaction"})
			return
		}
		writeJSON(w, 200, map[string]any{"type": "user_transaction", "success": true, "version": "5"})
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).AwaitConfirmation(context.Background(), "0xabc", 5*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, res.Status)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, uint64(5), res.Version)
}

type stuckQuerier struct {
	calls atomic.Int32
}

func (s *stuckQuerier) TransactionStatus(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	if s.calls.Add(1)%2 == 0 {
		return nil, ErrNetworkUnavailable
	}
	return &ledger.TxStatus{Hash: hash, Found: true, Status: ledger.StatusPending}, nil
}

func TestAwaitConfirmationTimesOutAsExpired(t *testing.T) {
	q := &stuckQuerier{}
	start := time.Now()
	res, err := AwaitConfirmation(context.Background(), q, "0xabc", 5*time.Millisecond, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusExpired, res.Status)
	assert.Equal(t, "0xabc", res.Hash)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Greater(t, q.calls.Load(), int32(1))
}

func TestAwaitConfirmationContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := AwaitConfirmation(ctx, &stuckQuerier{}, "0xabc", time.Millisecond, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ledger.StatusExpired, res.Status)
}

func TestAwaitConfirmationInvalidParameters(t *testing.T) {
	_, err := AwaitConfirmation(context.Background(), &stuckQuerier{}, "0xabc", 0, time.Second)
	assert.ErrorIs(t, err, ledger.ErrInvalidParameters)
}

func TestLedgerInfoAndGasEstimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1":
			writeJSON(w, 200, map[string]any{"chain_id": 2, "ledger_version": "1000", "ledger_timestamp": "1700000000000000"})
		case "/v1/estimate_gas_price":
			writeJSON(w, 200, map[string]any{"gas_estimate": 150})
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	info, err := c.LedgerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(2), info.ChainID)
	assert.Equal(t, uint64(1000), info.LedgerVersion)

	price, err := c.EstimateGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(150), price)

	assert.NoError(t, c.IsHealthy(context.Background()))
}
