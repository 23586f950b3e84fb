package sequencer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/types/ledger"
)

var (
	// ErrConfirmationTimeout means the transaction was submitted but no terminal
	// status was observed in time. The outcome is ambiguous; it may still land.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	// ErrSubmissionUnknown means every submit attempt lost its response and the
	// node did not report the transaction afterwards. It may still land.
	ErrSubmissionUnknown = errors.New("submission outcome unknown")
	// ErrTransactionRejected means the transaction was committed but failed to execute
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrOrchestratorStopped is returned for actions still queued at shutdown
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
	// ErrNotRunning is returned when an action is logged before Start
	ErrNotRunning = errors.New("orchestrator not running")
)

// State is a step of the per-action state machine
type State int

const (
	StateQueued State = iota
	StateBuilding
	StateSigned
	StateSubmitted
	StateConfirmed
	StateRejected
	StateExpired
	StateFailed
	StateCanceled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateBuilding:
		return "BUILDING"
	case StateSigned:
		return "SIGNED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateConfirmed:
		return "CONFIRMED"
	case StateRejected:
		return "REJECTED"
	case StateExpired:
		return "EXPIRED"
	case StateFailed:
		return "FAILED"
	case StateCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	for st := StateQueued; st <= StateCanceled; st++ {
		if strings.EqualFold(st.String(), string(text)) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Receipt is the outcome of one logged action. Hash is set once the
// transaction was submitted, including for EXPIRED and REJECTED outcomes.
type Receipt struct {
	ActionID       string        `json:"actionId" cbor:"actionId"`
	Action         string        `json:"action" cbor:"action"`
	Hash           string        `json:"hash,omitempty" cbor:"hash"`
	Status         ledger.Status `json:"status" cbor:"status"`
	State          State         `json:"state" cbor:"state"`
	SequenceNumber uint64        `json:"sequenceNumber" cbor:"sequenceNumber"`
	Attempts       int           `json:"attempts" cbor:"attempts"`
	VMStatus       string        `json:"vmStatus,omitempty" cbor:"vmStatus"`
	Version        uint64        `json:"version,omitempty" cbor:"version"`
	GasUsed        uint64        `json:"gasUsed,omitempty" cbor:"gasUsed"`
	Error          string        `json:"error,omitempty" cbor:"error"`
	SubmittedAt    time.Time     `json:"submittedAt,omitempty" cbor:"submittedAt"`
	FinishedAt     time.Time     `json:"finishedAt" cbor:"finishedAt"`
}

// Submitted reports whether the action reached the network
func (r *Receipt) Submitted() bool {
	return r.Hash != ""
}

// LogError is the typed failure of a logged action
type LogError struct {
	ActionID string
	Action   string
	State    State
	Attempts int
	Hash     string
	Err      error
}

// Error implements error
func (e *LogError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("action %s failed in %s after %d attempt(s) (tx %s): %v", e.ActionID, e.State, e.Attempts, e.Hash, e.Err)
	}
	return fmt.Sprintf("action %s failed in %s after %d attempt(s): %v", e.ActionID, e.State, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause
func (e *LogError) Unwrap() error {
	return e.Err
}

// Retryable reports whether logging the same action again could succeed
// without risking a duplicate write
func (e *LogError) Retryable() bool {
	if e.Ambiguous() {
		return false
	}
	return errors.Is(e.Err, ledgerapi.ErrNetworkUnavailable) || errors.Is(e.Err, ledgerapi.ErrSequenceMismatch)
}

// Ambiguous reports whether the transaction may still land on-chain
func (e *LogError) Ambiguous() bool {
	return errors.Is(e.Err, ErrConfirmationTimeout) || errors.Is(e.Err, ErrSubmissionUnknown)
}

// failureReason maps an error onto a metrics label
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrConfirmationTimeout), errors.Is(err, ErrSubmissionUnknown):
		return metrics.ReasonTimeout
	case errors.Is(err, ErrTransactionRejected):
		return metrics.ReasonRejected
	case errors.Is(err, ledgerapi.ErrNetworkUnavailable):
		return metrics.ReasonNetwork
	case errors.Is(err, ledgerapi.ErrSequenceMismatch):
		return metrics.ReasonSequence
	case errors.Is(err, ledgerapi.ErrInsufficientGas):
		return metrics.ReasonGas
	case errors.Is(err, ledgerapi.ErrExpired):
		return metrics.ReasonExpired
	case errors.Is(err, ledgerapi.ErrNetworkRejected):
		return metrics.ReasonRejected
	case errors.Is(err, ledgerapi.ErrAccountNotFound):
		return metrics.ReasonAccount
	case errors.Is(err, ledger.ErrInvalidParameters):
		return metrics.ReasonInvalid
	case errors.Is(err, ledger.ErrUnsupportedArgumentType):
		return metrics.ReasonUnsupported
	case errors.Is(err, signer.ErrSigning):
		return metrics.ReasonSigning
	case errors.Is(err, ErrOrchestratorStopped), errors.Is(err, ErrNotRunning):
		return metrics.ReasonCanceled
	default:
		return metrics.ReasonOther
	}
}
