// Package ledger defines the transaction model submitted to the ledger
// network: account addresses, entry-function payloads, raw and signed
// transactions and their confirmation status.
package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opendlt/actionlog/types/bcs"
)

// AddressLength is the byte length of an account address
const AddressLength = 32

// Address is a 32-byte account address
type Address [AddressLength]byte

// ParseAddress parses a hex address with or without the 0x prefix. Short
// forms such as "0x1" are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	var addr Address

	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if raw == "" {
		return addr, fmt.Errorf("empty address")
	}
	if len(raw) > AddressLength*2 {
		return addr, fmt.Errorf("address %q too long: %d hex characters", s, len(raw))
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}

	copy(addr[AddressLength-len(decoded):], decoded)
	return addr, nil
}

// MustParseAddress parses an address and panics on error; for constants and tests
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the full-length 0x-prefixed lowercase form
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zeros
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalBCS writes the address as 32 raw bytes
func (a Address) MarshalBCS(s *bcs.Serializer) {
	s.FixedBytes(a[:])
}

// UnmarshalBCS reads 32 raw bytes
func (a *Address) UnmarshalBCS(d *bcs.Deserializer) {
	copy(a[:], d.FixedBytes(AddressLength))
}
