package ledger

import (
	"time"

	"github.com/google/uuid"
)

// ActionRequest is an immutable request to record one action on-chain
type ActionRequest struct {
	ID        string    `json:"id" cbor:"id"`
	Module    ModuleID  `json:"-" cbor:"-"`
	Function  string    `json:"function" cbor:"function"`
	Args      []any     `json:"-" cbor:"-"`
	Summary   string    `json:"summary" cbor:"summary"`
	CreatedAt time.Time `json:"createdAt" cbor:"createdAt"`
}

// NewActionRequest builds a request that logs a single human-readable
// action string through module::function
func NewActionRequest(module ModuleID, function, action string) *ActionRequest {
	return &ActionRequest{
		ID:        uuid.NewString(),
		Module:    module,
		Function:  function,
		Args:      []any{action},
		Summary:   action,
		CreatedAt: time.Now().UTC(),
	}
}

// Payload returns the canonical payload bytes for the request
func (r *ActionRequest) Payload() ([]byte, error) {
	return EncodeEntryFunction(r.Module, r.Function, r.Args)
}
