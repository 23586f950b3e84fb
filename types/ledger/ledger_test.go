package ledger

import (
	"bytes"
	"crypto/ed25519"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/types/bcs"
)

const testContract = "0xe0f5d08c01462815ff2ae4816eaa6678f77fa26722d4e9ee456acfe966414b45"

const exampleAction = "AI executed a LONG trade with 5x leverage on BTC/USDT"

func testModule(t *testing.T) ModuleID {
	t.Helper()
	m, err := ParseModuleID(testContract + "::ai_trading_log")
	require.NoError(t, err)
	return m
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)
	assert.Equal(t, byte(1), addr[AddressLength-1])
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"1", addr.String())

	full := MustParseAddress(testContract)
	assert.Equal(t, testContract, full.String())

	_, err = ParseAddress("0x" + strings.Repeat("a", 65))
	assert.Error(t, err)
	_, err = ParseAddress("0xzz")
	assert.Error(t, err)
	_, err = ParseAddress("")
	assert.Error(t, err)
}

func TestParseModuleID(t *testing.T) {
	m := testModule(t)
	assert.Equal(t, "ai_trading_log", m.Name)
	assert.Equal(t, testContract+"::ai_trading_log", m.String())

	_, err := ParseModuleID("0x1")
	assert.Error(t, err)
	_, err = ParseModuleID("0x1::")
	assert.Error(t, err)
}

func TestEncodeEntryFunctionKnownBytes(t *testing.T) {
	m := testModule(t)

	payload, err := EncodeEntryFunction(m, "log_trade", []any{exampleAction})
	require.NoError(t, err)

	var expected []byte
	expected = append(expected, 0x02)
	expected = append(expected, m.Address[:]...)
	expected = append(expected, byte(len("ai_trading_log")))
	expected = append(expected, "ai_trading_log"...)
	expected = append(expected, byte(len("log_trade")))
	expected = append(expected, "log_trade"...)
	expected = append(expected, 0x00) // type args
	expected = append(expected, 0x01) // one argument
	expected = append(expected, byte(len(exampleAction)+1))
	expected = append(expected, byte(len(exampleAction)))
	expected = append(expected, exampleAction...)

	assert.Equal(t, expected, payload)
}

func TestEncodeEntryFunctionRoundTrip(t *testing.T) {
	m := testModule(t)

	payload, err := EncodeEntryFunction(m, "log_trade", []any{exampleAction})
	require.NoError(t, err)

	decoded, err := DecodeEntryFunction(payload)
	require.NoError(t, err)
	assert.Equal(t, m, decoded.Module)
	assert.Equal(t, "log_trade", decoded.Function)
	require.Len(t, decoded.Args, 1)

	action, err := DecodeStringArgument(decoded.Args[0])
	require.NoError(t, err)
	assert.Equal(t, exampleAction, action)
}

func TestEncodeArgumentTypes(t *testing.T) {
	supported := []any{
		"text",
		[]byte{1, 2, 3},
		true,
		uint8(1),
		uint16(2),
		uint32(3),
		uint64(4),
		big.NewInt(5),
		MustParseAddress("0x1"),
		[]string{"a", "b"},
	}
	for _, v := range supported {
		_, err := EncodeArgument(v)
		assert.NoError(t, err, "%T", v)
	}

	unsupported := []any{1.5, 7, int64(7), map[string]string{}, nil, struct{}{}, big.NewInt(-1)}
	for _, v := range unsupported {
		_, err := EncodeArgument(v)
		assert.ErrorIs(t, err, ErrUnsupportedArgumentType, "%T", v)
	}
}

func TestEncodeArgumentRejectsInvalidUTF8(t *testing.T) {
	_, err := EncodeArgument("\xff\xfeAI executed a LONG trade")
	assert.ErrorIs(t, err, ErrUnsupportedArgumentType)
	assert.ErrorIs(t, err, bcs.ErrInvalidUTF8)

	_, err = EncodeArgument([]string{"ok", "\xc3\x28"})
	assert.ErrorIs(t, err, bcs.ErrInvalidUTF8)

	_, err = EncodeEntryFunction(testModule(t), "log_trade", []any{"\xff"})
	require.ErrorIs(t, err, ErrUnsupportedArgumentType)
	assert.Contains(t, err.Error(), "argument 0")
}

func TestEncodeEntryFunctionUnsupportedArgument(t *testing.T) {
	_, err := EncodeEntryFunction(testModule(t), "log_trade", []any{"ok", 3.14})
	require.ErrorIs(t, err, ErrUnsupportedArgumentType)
	assert.Contains(t, err.Error(), "argument 1")
}

func TestDecodeEntryFunctionRejectsGarbage(t *testing.T) {
	_, err := DecodeEntryFunction([]byte{0x01})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeEntryFunction([]byte{0x02, 0x00})
	assert.Error(t, err)
}

func TestAssemble(t *testing.T) {
	m := testModule(t)
	payload, err := EncodeEntryFunction(m, "log_trade", []any{exampleAction})
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	params := EnvelopeParams{
		Sender:         m.Address,
		SequenceNumber: 7,
		Payload:        payload,
		MaxGasAmount:   1000,
		GasUnitPrice:   100,
		TTL:            600 * time.Second,
		ChainID:        2,
		Now:            func() time.Time { return now },
	}

	raw, err := Assemble(params)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), raw.SequenceNumber)
	assert.Equal(t, uint64(1_700_000_600), raw.ExpirationTimestampSecs)
	assert.Equal(t, uint8(2), raw.ChainID)
	assert.Equal(t, payload, raw.Payload)

	// sub-second ttl rounds up
	params.TTL = 10 * time.Millisecond
	raw, err = Assemble(params)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_001), raw.ExpirationTimestampSecs)
}

func TestAssembleInvalidParameters(t *testing.T) {
	base := EnvelopeParams{
		Sender:       MustParseAddress("0x1"),
		Payload:      []byte{0x02},
		MaxGasAmount: 1000,
		TTL:          time.Minute,
	}

	cases := map[string]func(p *EnvelopeParams){
		"zero gas":     func(p *EnvelopeParams) { p.MaxGasAmount = 0 },
		"zero ttl":     func(p *EnvelopeParams) { p.TTL = 0 },
		"negative ttl": func(p *EnvelopeParams) { p.TTL = -time.Second },
		"no payload":   func(p *EnvelopeParams) { p.Payload = nil },
		"zero sender":  func(p *EnvelopeParams) { p.Sender = Address{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			_, err := Assemble(p)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestRawTransactionRoundTrip(t *testing.T) {
	m := testModule(t)
	payload, err := EncodeEntryFunction(m, "log_trade", []any{exampleAction})
	require.NoError(t, err)

	raw, err := Assemble(EnvelopeParams{
		Sender:         m.Address,
		SequenceNumber: 42,
		Payload:        payload,
		MaxGasAmount:   1000,
		GasUnitPrice:   100,
		TTL:            time.Minute,
		ChainID:        2,
	})
	require.NoError(t, err)

	data, err := raw.Bytes()
	require.NoError(t, err)

	decoded, err := DecodeRawTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)

	msg, err := raw.SigningMessage()
	require.NoError(t, err)
	assert.Len(t, msg, 32+len(data))
	assert.True(t, bytes.HasSuffix(msg, data))
}

func TestSignedTransactionHash(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)

	m := testModule(t)
	payload, err := EncodeEntryFunction(m, "log_trade", []any{exampleAction})
	require.NoError(t, err)

	raw := &RawTransaction{
		Sender:                  AuthenticationKey(pub),
		SequenceNumber:          7,
		Payload:                 payload,
		MaxGasAmount:            1000,
		GasUnitPrice:            100,
		ExpirationTimestampSecs: 1_700_000_600,
		ChainID:                 2,
	}
	msg, err := raw.SigningMessage()
	require.NoError(t, err)

	signed := &SignedTransaction{Raw: raw, PublicKey: pub, Signature: ed25519.Sign(key, msg)}

	h1, err := signed.Hash()
	require.NoError(t, err)
	h2, err := signed.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, "0x"))
	assert.Len(t, h1, 66)

	data, err := signed.Bytes()
	require.NoError(t, err)
	decoded, err := DecodeSignedTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, signed.Raw, decoded.Raw)
	assert.Equal(t, signed.Signature, decoded.Signature)

	// a different sequence changes the hash
	raw2 := *raw
	raw2.SequenceNumber = 8
	other := &SignedTransaction{Raw: &raw2, PublicKey: pub, Signature: signed.Signature}
	h3, err := other.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusExpired, StatusRejected} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var parsed Status
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestPayloadDeterminismProperty(t *testing.T) {
	module := MustParseAddress(testContract)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical actions encode identically and decode back", prop.ForAll(
		func(action string) bool {
			id := ModuleID{Address: module, Name: "ai_trading_log"}
			a, err1 := EncodeEntryFunction(id, "log_trade", []any{action})
			b, err2 := EncodeEntryFunction(id, "log_trade", []any{action})
			if err1 != nil || err2 != nil || !bytes.Equal(a, b) {
				return false
			}
			ef, err := DecodeEntryFunction(a)
			if err != nil || len(ef.Args) != 1 {
				return false
			}
			got, err := DecodeStringArgument(ef.Args[0])
			return err == nil && got == action
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
