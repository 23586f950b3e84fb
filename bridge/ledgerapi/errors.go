package ledgerapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error taxonomy shared by every client operation. APIError unwraps to exactly one of these.
var (
	// ErrNetworkUnavailable is a transient transport or node failure; safe to retry
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrAccountNotFound means the account does not exist on-chain
	ErrAccountNotFound = errors.New("account not found")
	// ErrSequenceMismatch means the envelope's sequence number is stale or ahead
	ErrSequenceMismatch = errors.New("sequence number mismatch")
	// ErrInsufficientGas means the gas budget or balance cannot cover the transaction
	ErrInsufficientGas = errors.New("insufficient gas")
	// ErrExpired means the envelope's expiration passed before it was accepted
	ErrExpired = errors.New("transaction expired")
	// ErrNetworkRejected is any other permanent rejection by the node
	ErrNetworkRejected = errors.New("rejected by network")
)

// VM status codes reported by the node on validation failures
const (
	vmSequenceNumberTooOld      = 3
	vmSequenceNumberTooNew      = 4
	vmInsufficientBalanceForFee = 5
	vmTransactionExpired        = 6
	vmGasUnitPriceBelowMin      = 13
	vmMaxGasUnitsBelowMin       = 14
	vmMaxGasUnitsExceedsMax     = 15
)

// APIError is a non-success response from the node
type APIError struct {
	StatusCode  int    `json:"-"`
	Endpoint    string `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode int    `json:"vm_error_code"`

	kind error
}

// Error implements error
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: HTTP %d", e.Kind(), e.StatusCode)
	if e.ErrorCode != "" {
		fmt.Fprintf(&b, " %s", e.ErrorCode)
	}
	if e.VMErrorCode != 0 {
		fmt.Fprintf(&b, " (vm %d)", e.VMErrorCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap returns the taxonomy sentinel for the response
func (e *APIError) Unwrap() error {
	return e.Kind()
}

// Kind classifies the response into one sentinel error
func (e *APIError) Kind() error {
	if e.kind == nil {
		e.kind = classify(e)
	}
	return e.kind
}

func classify(e *APIError) error {
	msg := strings.ToUpper(e.Message)

	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500,
		e.ErrorCode == "mempool_is_full",
		e.ErrorCode == "internal_error",
		e.ErrorCode == "health_check_failed":
		return ErrNetworkUnavailable

	case e.ErrorCode == "sequence_number_too_old",
		e.VMErrorCode == vmSequenceNumberTooOld,
		e.VMErrorCode == vmSequenceNumberTooNew,
		strings.Contains(msg, "SEQUENCE_NUMBER_TOO_OLD"),
		strings.Contains(msg, "SEQUENCE_NUMBER_TOO_NEW"):
		return ErrSequenceMismatch

	// a gas budget above the network bound is a configuration error
	case e.VMErrorCode == vmMaxGasUnitsExceedsMax,
		strings.Contains(msg, "MAX_GAS_UNITS_EXCEEDS_MAX_GAS_UNITS_BOUND"):
		return ErrNetworkRejected

	case e.VMErrorCode == vmInsufficientBalanceForFee,
		e.VMErrorCode == vmGasUnitPriceBelowMin,
		e.VMErrorCode == vmMaxGasUnitsBelowMin,
		strings.Contains(msg, "INSUFFICIENT_BALANCE_FOR_TRANSACTION_FEE"),
		strings.Contains(msg, "MAX_GAS_UNITS_BELOW_MIN_TRANSACTION_GAS_UNITS"),
		strings.Contains(msg, "GAS_UNIT_PRICE_BELOW_MIN_BOUND"),
		strings.Contains(msg, "OUT_OF_GAS"):
		return ErrInsufficientGas

	case e.VMErrorCode == vmTransactionExpired,
		strings.Contains(msg, "TRANSACTION_EXPIRED"):
		return ErrExpired

	case e.ErrorCode == "account_not_found",
		e.StatusCode == http.StatusNotFound && strings.Contains(msg, "ACCOUNT"):
		return ErrAccountNotFound

	default:
		return ErrNetworkRejected
	}
}

// IsRetryable reports whether err is transient at the transport level
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// MaybeDelivered reports whether a failed submission could still have reached
// the node: a lost response or a gateway failure, but not a throttled or
// mempool-full reply.
func MaybeDelivered(err error) bool {
	if !errors.Is(err, ErrNetworkUnavailable) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.ErrorCode != "mempool_is_full"
	}
	return true
}

// unavailable wraps a transport failure
func unavailable(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrNetworkUnavailable, endpoint, err)
}
