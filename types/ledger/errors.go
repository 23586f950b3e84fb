package ledger

import "errors"

var (
	// ErrUnsupportedArgumentType is returned when an argument has no canonical encoding
	ErrUnsupportedArgumentType = errors.New("unsupported argument type")
	// ErrInvalidParameters is returned when an envelope cannot be assembled
	ErrInvalidParameters = errors.New("invalid transaction parameters")
	// ErrInvalidPayload is returned when payload bytes cannot be decoded
	ErrInvalidPayload = errors.New("invalid transaction payload")
)
