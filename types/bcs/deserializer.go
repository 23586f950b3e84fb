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
	// ErrUnexpectedEOF is returned when the input ends before a value is complete
	ErrUnexpectedEOF = errors.New("unexpected end of input")
	// ErrInvalidBool is returned for a bool byte other than 0 or 1
	ErrInvalidBool = errors.New("invalid bool encoding")
	// ErrUlebOverflow is returned when a ULEB128 value exceeds 32 bits
	ErrUlebOverflow = errors.New("uleb128 value overflows u32")
	// ErrRemaining is returned when bytes are left over after a full decode
	ErrRemaining = errors.New("trailing bytes after decode")
)

// maxUlebLen is the longest ULEB128 encoding of a u32
const maxUlebLen = 5

// Unmarshaler is implemented by types that can decode their canonical encoding
type Unmarshaler interface {
	UnmarshalBCS(*Deserializer)
}

// Deserializer reads canonical values from a byte slice. Like Serializer, the
// first error is sticky and later reads return zero values.
type Deserializer struct {
	data []byte
	des  *aptosbcs.Deserializer
	err  error
}

// NewDeserializer wraps data for reading
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{data: data, des: aptosbcs.NewDeserializer(data)}
}

// Deserialize decodes data into v and requires that every byte is consumed
func Deserialize(data []byte, v Unmarshaler) error {
	d := NewDeserializer(data)
	v.UnmarshalBCS(d)
	if d.err != nil {
		return d.err
	}
	if d.Remaining() != 0 {
		return fmt.Errorf("%w: %d bytes", ErrRemaining, d.Remaining())
	}
	return nil
}

// Err returns the first decode error
func (d *Deserializer) Err() error {
	return d.err
}

// SetError records an error if none has been recorded yet
func (d *Deserializer) SetError(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Remaining reports how many unread bytes are left
func (d *Deserializer) Remaining() int {
	return d.des.Remaining()
}

// need reports whether n more bytes can be read, recording ErrUnexpectedEOF if not
func (d *Deserializer) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || d.Remaining() < n {
		d.SetError(fmt.Errorf("%w: need %d bytes at offset %d", ErrUnexpectedEOF, n, len(d.data)-d.Remaining()))
		return false
	}
	return true
}

// check folds a failure of the underlying decoder into sentinel
func (d *Deserializer) check(sentinel error) {
	if err := d.des.Error(); err != nil {
		d.SetError(fmt.Errorf("%w: %v", sentinel, err))
	}
}

// U8 reads a single byte
func (d *Deserializer) U8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.des.U8()
	d.check(ErrUnexpectedEOF)
	return v
}

// U16 reads a little-endian uint16
func (d *Deserializer) U16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := d.des.U16()
	d.check(ErrUnexpectedEOF)
	return v
}

// U32 reads a little-endian uint32
func (d *Deserializer) U32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := d.des.U32()
	d.check(ErrUnexpectedEOF)
	return v
}

// U64 reads a little-endian uint64
func (d *Deserializer) U64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := d.des.U64()
	d.check(ErrUnexpectedEOF)
	return v
}

// U128 reads a 16-byte little-endian unsigned integer
func (d *Deserializer) U128() *big.Int {
	if !d.need(16) {
		return new(big.Int)
	}
	v := d.des.U128()
	d.check(ErrUnexpectedEOF)
	return &v
}

// Bool reads a strict 0/1 byte
func (d *Deserializer) Bool() bool {
	if !d.need(1) {
		return false
	}
	v := d.des.Bool()
	d.check(ErrInvalidBool)
	return v
}

// Uleb128 reads a variable-length unsigned integer of at most 32 bits
func (d *Deserializer) Uleb128() uint32 {
	if d.err != nil {
		return 0
	}

	// bound the encoding before decoding it
	rest := d.data[len(d.data)-d.Remaining():]
	for i := 0; ; i++ {
		if i == maxUlebLen {
			d.SetError(ErrUlebOverflow)
			return 0
		}
		if i == len(rest) {
			d.SetError(fmt.Errorf("%w: truncated uleb128", ErrUnexpectedEOF))
			return 0
		}
		if rest[i]&0x80 == 0 {
			if i == maxUlebLen-1 && rest[i] > 0x0f {
				d.SetError(ErrUlebOverflow)
				return 0
			}
			break
		}
	}

	v := d.des.Uleb128()
	d.check(ErrUlebOverflow)
	return v
}

// ReadBytes reads a length-prefixed byte string
func (d *Deserializer) ReadBytes() []byte {
	n := d.Uleb128()
	if d.err != nil {
		return nil
	}
	return d.FixedBytes(int(n))
}

// Str reads a length-prefixed string. Invalid UTF-8 is an error.
func (d *Deserializer) Str() string {
	b := d.ReadBytes()
	if d.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		d.SetError(fmt.Errorf("%w: %x", ErrInvalidUTF8, b))
		return ""
	}
	return string(b)
}

// FixedBytes reads exactly n raw bytes
func (d *Deserializer) FixedBytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	b := d.des.ReadFixedBytes(n)
	d.check(ErrUnexpectedEOF)
	if d.err != nil {
		return nil
	}
	return bytes.Clone(b)
}

// Struct decodes a nested value in place
func (d *Deserializer) Struct(u Unmarshaler) {
	if d.err != nil {
		return
	}
	u.UnmarshalBCS(d)
}
