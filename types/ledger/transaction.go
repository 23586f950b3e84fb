package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/opendlt/actionlog/types/bcs"
)

const (
	rawTransactionSalt = "APTOS::RawTransaction"
	transactionSalt    = "APTOS::Transaction"

	// ed25519Authenticator is the TransactionAuthenticator enum index for single-key ed25519
	ed25519Authenticator = 0
	// userTransactionVariant is the Transaction enum index used when hashing a signed user transaction
	userTransactionVariant = 0
)

// RawTransaction is the unsigned transaction envelope. Payload holds the
// canonical payload bytes and is written verbatim.
type RawTransaction struct {
	Sender                  Address
	SequenceNumber          uint64
	Payload                 []byte
	MaxGasAmount            uint64
	GasUnitPrice            uint64
	ExpirationTimestampSecs uint64
	ChainID                 uint8
}

// EnvelopeParams are the inputs to Assemble
type EnvelopeParams struct {
	Sender         Address
	SequenceNumber uint64
	Payload        []byte
	MaxGasAmount   uint64
	GasUnitPrice   uint64
	TTL            time.Duration
	ChainID        uint8

	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// Assemble builds an unsigned envelope expiring TTL after now. It performs no I/O.
func Assemble(p EnvelopeParams) (*RawTransaction, error) {
	if p.MaxGasAmount == 0 {
		return nil, fmt.Errorf("%w: gas budget must be positive", ErrInvalidParameters)
	}
	if p.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidParameters, p.TTL)
	}
	if len(p.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidParameters)
	}
	if p.Sender.IsZero() {
		return nil, fmt.Errorf("%w: sender address is zero", ErrInvalidParameters)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	// Round sub-second TTLs up so a positive TTL never yields expiration == now
	ttlSecs := uint64((p.TTL + time.Second - 1) / time.Second)

	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)

	return &RawTransaction{
		Sender:                  p.Sender,
		SequenceNumber:          p.SequenceNumber,
		Payload:                 payload,
		MaxGasAmount:            p.MaxGasAmount,
		GasUnitPrice:            p.GasUnitPrice,
		ExpirationTimestampSecs: uint64(now().Unix()) + ttlSecs,
		ChainID:                 p.ChainID,
	}, nil
}

// MarshalBCS writes the canonical envelope encoding
func (tx *RawTransaction) MarshalBCS(s *bcs.Serializer) {
	s.Struct(tx.Sender)
	s.U64(tx.SequenceNumber)
	s.FixedBytes(tx.Payload)
	s.U64(tx.MaxGasAmount)
	s.U64(tx.GasUnitPrice)
	s.U64(tx.ExpirationTimestampSecs)
	s.U8(tx.ChainID)
}

// UnmarshalBCS reads an envelope whose payload is an entry function
func (tx *RawTransaction) UnmarshalBCS(d *bcs.Deserializer) {
	d.Struct(&tx.Sender)
	tx.SequenceNumber = d.U64()

	// The payload is embedded without a length prefix, so decode it to find its end
	var ef EntryFunction
	d.Struct(&ef)
	if d.Err() != nil {
		return
	}
	payload, err := bcs.Serialize(&ef)
	if err != nil {
		d.SetError(err)
		return
	}
	tx.Payload = payload

	tx.MaxGasAmount = d.U64()
	tx.GasUnitPrice = d.U64()
	tx.ExpirationTimestampSecs = d.U64()
	tx.ChainID = d.U8()
}

// Bytes returns the canonical encoding of the envelope
func (tx *RawTransaction) Bytes() ([]byte, error) {
	return bcs.Serialize(tx)
}

// SigningMessage returns the bytes an ed25519 key signs for this envelope
func (tx *RawTransaction) SigningMessage() ([]byte, error) {
	body, err := tx.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw transaction: %w", err)
	}
	prefix := sha3.Sum256([]byte(rawTransactionSalt))
	return append(prefix[:], body...), nil
}

// Expiration returns the envelope expiration as a time
func (tx *RawTransaction) Expiration() time.Time {
	return time.Unix(int64(tx.ExpirationTimestampSecs), 0).UTC()
}

// DecodeRawTransaction decodes bytes produced by RawTransaction.Bytes
func DecodeRawTransaction(data []byte) (*RawTransaction, error) {
	var tx RawTransaction
	if err := bcs.Deserialize(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode raw transaction: %w", err)
	}
	return &tx, nil
}

// SignedTransaction is an envelope plus its ed25519 authenticator
type SignedTransaction struct {
	Raw       *RawTransaction
	PublicKey ed25519.PublicKey
	Signature []byte
}

// MarshalBCS writes the envelope followed by the authenticator
func (st *SignedTransaction) MarshalBCS(s *bcs.Serializer) {
	if st.Raw == nil {
		s.SetError(fmt.Errorf("%w: signed transaction has no envelope", ErrInvalidParameters))
		return
	}
	s.Struct(st.Raw)
	s.Uleb128(ed25519Authenticator)
	s.WriteBytes(st.PublicKey)
	s.WriteBytes(st.Signature)
}

// UnmarshalBCS reads a signed transaction
func (st *SignedTransaction) UnmarshalBCS(d *bcs.Deserializer) {
	st.Raw = &RawTransaction{}
	d.Struct(st.Raw)
	if variant := d.Uleb128(); d.Err() == nil && variant != ed25519Authenticator {
		d.SetError(fmt.Errorf("%w: authenticator variant %d", ErrInvalidPayload, variant))
		return
	}
	st.PublicKey = ed25519.PublicKey(d.ReadBytes())
	st.Signature = d.ReadBytes()
}

// Bytes returns the submission body for the signed transaction
func (st *SignedTransaction) Bytes() ([]byte, error) {
	return bcs.Serialize(st)
}

// Hash returns the transaction hash the network reports once the
// transaction is accepted, as 0x-prefixed lowercase hex.
func (st *SignedTransaction) Hash() (string, error) {
	body, err := st.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode signed transaction: %w", err)
	}

	prefix := sha3.Sum256([]byte(transactionSalt))
	h := sha3.New256()
	h.Write(prefix[:])
	h.Write([]byte{userTransactionVariant})
	h.Write(body)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeSignedTransaction decodes bytes produced by SignedTransaction.Bytes
func DecodeSignedTransaction(data []byte) (*SignedTransaction, error) {
	var st SignedTransaction
	if err := bcs.Deserialize(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	return &st, nil
}

// AuthenticationKey derives the single-key ed25519 authentication key,
// which is also the address of an account that never rotated its key.
func AuthenticationKey(pub ed25519.PublicKey) Address {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519Authenticator})
	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}
