// Package bcs adapts the Aptos BCS codec to ledger transactions: strict u128
// bounds, UTF-8 only strings and typed decode errors on top of
// little-endian fixed-width integers and ULEB128 length prefixes. The same
// logical value always encodes to the same bytes.
package bcs

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	aptosbcs "github.com/aptos-labs/aptos-go-sdk/bcs"
)

var (
	// ErrU128Range is returned when a big integer does not fit in 128 unsigned bits
	ErrU128Range = errors.New("value out of u128 range")
	// ErrInvalidUTF8 is returned for strings that are not valid UTF-8
	ErrInvalidUTF8 = errors.New("string is not valid utf-8")
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Marshaler is implemented by types that know their canonical encoding
type Marshaler interface {
	MarshalBCS(*Serializer)
}

// Serializer is an append-only canonical encoder. The first error is sticky;
// subsequent writes are ignored and Err reports it.
type Serializer struct {
	ser aptosbcs.Serializer
	err error
}

// NewSerializer creates an empty serializer
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize encodes a single value and returns its bytes
func Serialize(m Marshaler) ([]byte, error) {
	s := NewSerializer()
	m.MarshalBCS(s)
	if err := s.Err(); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// Bytes returns a copy of the encoded buffer
func (s *Serializer) Bytes() []byte {
	return bytes.Clone(s.ser.ToBytes())
}

// Err returns the first error recorded by the serializer
func (s *Serializer) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.ser.Error()
}

// SetError records an error if none has been recorded yet
func (s *Serializer) SetError(err error) {
	if s.Err() == nil {
		s.err = err
	}
}

// Reset clears the buffer and any recorded error
func (s *Serializer) Reset() {
	s.ser = aptosbcs.Serializer{}
	s.err = nil
}

func (s *Serializer) ok() bool {
	return s.Err() == nil
}

// U8 writes a single byte
func (s *Serializer) U8(v uint8) {
	if s.ok() {
		s.ser.U8(v)
	}
}

// U16 writes a little-endian uint16
func (s *Serializer) U16(v uint16) {
	if s.ok() {
		s.ser.U16(v)
	}
}

// U32 writes a little-endian uint32
func (s *Serializer) U32(v uint32) {
	if s.ok() {
		s.ser.U32(v)
	}
}

// U64 writes a little-endian uint64
func (s *Serializer) U64(v uint64) {
	if s.ok() {
		s.ser.U64(v)
	}
}

// U128 writes a 16-byte little-endian unsigned integer
func (s *Serializer) U128(v *big.Int) {
	if !s.ok() {
		return
	}
	if v == nil || v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		s.SetError(fmt.Errorf("%w: %v", ErrU128Range, v))
		return
	}
	s.ser.U128(*v)
}

// Bool writes 0x01 for true and 0x00 for false
func (s *Serializer) Bool(v bool) {
	if s.ok() {
		s.ser.Bool(v)
	}
}

// Uleb128 writes a variable-length unsigned integer
func (s *Serializer) Uleb128(v uint32) {
	if s.ok() {
		s.ser.Uleb128(v)
	}
}

// WriteBytes writes a length-prefixed byte string
func (s *Serializer) WriteBytes(b []byte) {
	if s.ok() {
		s.ser.WriteBytes(b)
	}
}

// Str writes a length-prefixed UTF-8 string. Invalid UTF-8 is an error.
func (s *Serializer) Str(v string) {
	if !s.ok() {
		return
	}
	if !utf8.ValidString(v) {
		s.SetError(fmt.Errorf("%w: %q", ErrInvalidUTF8, v))
		return
	}
	s.ser.WriteString(v)
}

// FixedBytes writes raw bytes without a length prefix
func (s *Serializer) FixedBytes(b []byte) {
	if s.ok() {
		s.ser.FixedBytes(b)
	}
}

// Struct writes a nested value in place
func (s *Serializer) Struct(m Marshaler) {
	if s.ok() {
		m.MarshalBCS(s)
	}
}

// SerializeSequence writes a length-prefixed vector of values
func SerializeSequence[T Marshaler](s *Serializer, items []T) {
	s.Uleb128(uint32(len(items)))
	for _, item := range items {
		s.Struct(item)
	}
}
