package signer

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opendlt/actionlog/types/ledger"
)

// ErrSigning is returned for any failure to produce a signature. It is fatal
// for the action being logged and is never retried.
var ErrSigning = errors.New("signing error")

// Signer signs transaction envelopes for a single account
type Signer interface {
	// SignTransaction signs a raw envelope
	SignTransaction(*ledger.RawTransaction) (*ledger.SignedTransaction, error)
	// PublicKey returns the public key used for signing
	PublicKey() ed25519.PublicKey
	// Address returns the account address the signer controls
	Address() ledger.Address
	// KeyAlias returns the key alias (if applicable)
	KeyAlias() string
}

// KeySigner signs with an in-memory ed25519 key. The key is never exposed
// through String, GoString or any accessor.
type KeySigner struct {
	privateKey ed25519.PrivateKey
	address    ledger.Address
	keyAlias   string
}

var _ Signer = (*KeySigner)(nil)

func newKeySigner(privateKey ed25519.PrivateKey, keyAlias string) *KeySigner {
	pub := privateKey.Public().(ed25519.PublicKey)
	return &KeySigner{
		privateKey: privateKey,
		address:    ledger.AuthenticationKey(pub),
		keyAlias:   keyAlias,
	}
}

// NewKeySignerFromString creates a signer from encoded key material
func NewKeySignerFromString(keyData, keyAlias string) (*KeySigner, error) {
	privateKey, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, err
	}
	return newKeySigner(privateKey, keyAlias), nil
}

// NewFileKeySigner creates a signer that reads key from file
func NewFileKeySigner(keyPath, keyAlias string) (*KeySigner, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", keyPath, err)
	}

	privateKey, err := parsePrivateKey(strings.TrimSpace(string(keyData)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from %s: %w", keyPath, err)
	}

	return newKeySigner(privateKey, keyAlias), nil
}

// NewEnvKeySigner creates a signer that reads key from environment variable
func NewEnvKeySigner(envVar, keyAlias string) (*KeySigner, error) {
	keyData := os.Getenv(envVar)
	if keyData == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set or empty", ErrSigning, envVar)
	}

	privateKey, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from %s: %w", envVar, err)
	}

	return newKeySigner(privateKey, keyAlias), nil
}

// NewDevKeySigner creates a signer with a fixed development key (insecure, dev only)
func NewDevKeySigner() *KeySigner {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i % 256)
	}
	return newKeySigner(ed25519.NewKeyFromSeed(seed), "dev-default")
}

// WithAddress overrides the derived address, for accounts whose key was rotated
func (k *KeySigner) WithAddress(addr ledger.Address) *KeySigner {
	return &KeySigner{
		privateKey: k.privateKey,
		address:    addr,
		keyAlias:   k.keyAlias,
	}
}

// SignTransaction signs the envelope's signing message
func (k *KeySigner) SignTransaction(raw *ledger.RawTransaction) (*ledger.SignedTransaction, error) {
	if len(k.privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: no private key available", ErrSigning)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrSigning)
	}
	if raw.Sender != k.address {
		return nil, fmt.Errorf("%w: sender %s does not match signer account %s", ErrSigning, raw.Sender, k.address)
	}

	msg, err := raw.SigningMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return &ledger.SignedTransaction{
		Raw:       raw,
		PublicKey: k.PublicKey(),
		Signature: ed25519.Sign(k.privateKey, msg),
	}, nil
}

// PublicKey returns the signer's public key
func (k *KeySigner) PublicKey() ed25519.PublicKey {
	if len(k.privateKey) != ed25519.PrivateKeySize {
		return nil
	}
	return k.privateKey.Public().(ed25519.PublicKey)
}

// Address returns the account address
func (k *KeySigner) Address() ledger.Address {
	return k.address
}

// KeyAlias returns the key alias
func (k *KeySigner) KeyAlias() string {
	return k.keyAlias
}

// String never includes key material
func (k *KeySigner) String() string {
	return fmt.Sprintf("KeySigner{alias: %s, address: %s}", k.keyAlias, k.address)
}

// GoString never includes key material
func (k *KeySigner) GoString() string {
	return k.String()
}

// Verify checks the signature of a signed transaction
func Verify(st *ledger.SignedTransaction) bool {
	if st == nil || st.Raw == nil || len(st.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	msg, err := st.Raw.SigningMessage()
	if err != nil {
		return false
	}
	return ed25519.Verify(st.PublicKey, msg, st.Signature)
}

// SignerConfig represents signer configuration
type SignerConfig struct {
	Type string `yaml:"type"` // "file" | "env" | "dev"
	Key  string `yaml:"key"`  // path or env name or raw key (dev only)
}

// NewFromConfig creates a signer from configuration
func NewFromConfig(cfg *SignerConfig) (*KeySigner, error) {
	if cfg == nil || cfg.Type == "" {
		return nil, fmt.Errorf("%w: no signer configuration provided", ErrSigning)
	}

	switch cfg.Type {
	case "file":
		if cfg.Key == "" {
			return nil, fmt.Errorf("%w: file signer requires key path", ErrSigning)
		}
		return NewFileKeySigner(cfg.Key, "file")

	case "env":
		if cfg.Key == "" {
			return nil, fmt.Errorf("%w: env signer requires environment variable name", ErrSigning)
		}
		return NewEnvKeySigner(cfg.Key, "env")

	case "dev":
		if cfg.Key == "" {
			return NewDevKeySigner(), nil
		}
		return NewKeySignerFromString(cfg.Key, "dev")

	default:
		return nil, fmt.Errorf("%w: unsupported signer type: %s", ErrSigning, cfg.Type)
	}
}

// parsePrivateKey parses a private key from hex or base64 string. Hex may
// carry a 0x or ed25519-priv-0x prefix. A 64-byte key must carry the public
// key derived from its seed.
func parsePrivateKey(keyData string) (ed25519.PrivateKey, error) {
	keyData = strings.TrimSpace(keyData)
	trimmed := strings.TrimPrefix(keyData, "ed25519-priv-")
	trimmed = strings.TrimPrefix(trimmed, "0x")

	var candidates [][]byte
	if decoded, err := hex.DecodeString(trimmed); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := base64.StdEncoding.DecodeString(keyData); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(keyData); err == nil {
		candidates = append(candidates, decoded)
	}

	for _, decoded := range candidates {
		switch len(decoded) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(decoded), nil
		case ed25519.PrivateKeySize:
			key := ed25519.NewKeyFromSeed(decoded[:ed25519.SeedSize])
			if !bytes.Equal(key[ed25519.SeedSize:], decoded[ed25519.SeedSize:]) {
				return nil, fmt.Errorf("%w: public half of private key does not match its seed", ErrSigning)
			}
			return key, nil
		}
	}

	return nil, fmt.Errorf("%w: unable to parse private key: invalid format or length", ErrSigning)
}
