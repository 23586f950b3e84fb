package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/opendlt/actionlog/types/bcs"
)

// entryFunctionVariant is the TransactionPayload enum index for entry functions
const entryFunctionVariant = 2

// ModuleID names a published on-chain module
type ModuleID struct {
	Address Address
	Name    string
}

// ParseModuleID parses "<address>::<module>"
func ParseModuleID(s string) (ModuleID, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 2 || parts[1] == "" {
		return ModuleID{}, fmt.Errorf("invalid module id %q: expected <address>::<name>", s)
	}

	addr, err := ParseAddress(parts[0])
	if err != nil {
		return ModuleID{}, fmt.Errorf("invalid module id %q: %w", s, err)
	}

	return ModuleID{Address: addr, Name: parts[1]}, nil
}

// String renders "<address>::<module>"
func (m ModuleID) String() string {
	return m.Address.String() + "::" + m.Name
}

// MarshalBCS writes the module address followed by its name
func (m ModuleID) MarshalBCS(s *bcs.Serializer) {
	s.Struct(m.Address)
	s.Str(m.Name)
}

// UnmarshalBCS reads a module id
func (m *ModuleID) UnmarshalBCS(d *bcs.Deserializer) {
	d.Struct(&m.Address)
	m.Name = d.Str()
}

// EntryFunction is a call to a public entry function of a module. Args hold
// each argument's canonical encoding.
type EntryFunction struct {
	Module   ModuleID
	Function string
	Args     [][]byte
}

// MarshalBCS writes the payload enum tag and the entry function body
func (e *EntryFunction) MarshalBCS(s *bcs.Serializer) {
	s.Uleb128(entryFunctionVariant)
	s.Struct(e.Module)
	s.Str(e.Function)
	s.Uleb128(0) // no type arguments
	s.Uleb128(uint32(len(e.Args)))
	for _, arg := range e.Args {
		s.WriteBytes(arg)
	}
}

// UnmarshalBCS reads a payload written by MarshalBCS
func (e *EntryFunction) UnmarshalBCS(d *bcs.Deserializer) {
	if variant := d.Uleb128(); d.Err() == nil && variant != entryFunctionVariant {
		d.SetError(fmt.Errorf("%w: payload variant %d", ErrInvalidPayload, variant))
		return
	}
	d.Struct(&e.Module)
	e.Function = d.Str()
	if typeArgs := d.Uleb128(); d.Err() == nil && typeArgs != 0 {
		d.SetError(fmt.Errorf("%w: %d type arguments", ErrInvalidPayload, typeArgs))
		return
	}

	n := d.Uleb128()
	if d.Err() != nil {
		return
	}
	if int(n) > d.Remaining() {
		d.SetError(fmt.Errorf("%w: %d arguments exceed input", ErrInvalidPayload, n))
		return
	}
	e.Args = make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		e.Args = append(e.Args, d.ReadBytes())
	}
}

// EncodeArgument returns the canonical encoding of a single call argument
func EncodeArgument(v any) ([]byte, error) {
	s := bcs.NewSerializer()

	switch arg := v.(type) {
	case string:
		s.Str(arg)
	case []byte:
		s.WriteBytes(arg)
	case bool:
		s.Bool(arg)
	case uint8:
		s.U8(arg)
	case uint16:
		s.U16(arg)
	case uint32:
		s.U32(arg)
	case uint64:
		s.U64(arg)
	case *big.Int:
		s.U128(arg)
	case Address:
		s.Struct(arg)
	case []string:
		s.Uleb128(uint32(len(arg)))
		for _, item := range arg {
			s.Str(item)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedArgumentType, v)
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %T: %w", ErrUnsupportedArgumentType, v, err)
	}
	return s.Bytes(), nil
}

// NewEntryFunction encodes args and builds the entry function value
func NewEntryFunction(module ModuleID, function string, args []any) (*EntryFunction, error) {
	if function == "" {
		return nil, fmt.Errorf("%w: empty function name", ErrInvalidParameters)
	}

	encoded := make([][]byte, 0, len(args))
	for i, arg := range args {
		b, err := EncodeArgument(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		encoded = append(encoded, b)
	}

	return &EntryFunction{Module: module, Function: function, Args: encoded}, nil
}

// EncodeEntryFunction produces the canonical payload bytes for a call to
// module::function with args. Identical inputs always produce identical bytes.
func EncodeEntryFunction(module ModuleID, function string, args []any) ([]byte, error) {
	ef, err := NewEntryFunction(module, function, args)
	if err != nil {
		return nil, err
	}
	return bcs.Serialize(ef)
}

// DecodeEntryFunction decodes payload bytes produced by EncodeEntryFunction
func DecodeEntryFunction(data []byte) (*EntryFunction, error) {
	var ef EntryFunction
	if err := bcs.Deserialize(data, &ef); err != nil {
		return nil, fmt.Errorf("failed to decode entry function: %w", err)
	}
	return &ef, nil
}

// DecodeStringArgument decodes an argument encoded from a Go string
func DecodeStringArgument(arg []byte) (string, error) {
	d := bcs.NewDeserializer(arg)
	s := d.Str()
	if err := d.Err(); err != nil {
		return "", fmt.Errorf("failed to decode string argument: %w", err)
	}
	if d.Remaining() != 0 {
		return "", fmt.Errorf("failed to decode string argument: %w", bcs.ErrRemaining)
	}
	return s, nil
}
