package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a submitted transaction
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusExpired
	StatusRejected
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusExpired:
		return "EXPIRED"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s Status) Terminal() bool {
	return s != StatusPending
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "PENDING":
		*s = StatusPending
	case "CONFIRMED":
		*s = StatusConfirmed
	case "EXPIRED":
		*s = StatusExpired
	case "REJECTED":
		*s = StatusRejected
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// TxStatus is one observation of a transaction on the network
type TxStatus struct {
	Hash     string
	Found    bool
	Status   Status
	VMStatus string
	Version  uint64
	GasUsed  uint64
}

// SubmissionResult is the outcome of waiting for a submitted transaction
type SubmissionResult struct {
	Hash     string        `json:"hash"`
	Status   Status        `json:"status"`
	VMStatus string        `json:"vmStatus,omitempty"`
	Version  uint64        `json:"version,omitempty"`
	GasUsed  uint64        `json:"gasUsed,omitempty"`
	Polls    int           `json:"polls"`
	Elapsed  time.Duration `json:"elapsed"`
}
