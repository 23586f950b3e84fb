package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/sequencer"
	"github.com/opendlt/actionlog/types/ledger"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "testnet", cfg.Network.Profile)
	assert.Equal(t, []string{"https://fullnode.testnet.aptoslabs.com"}, cfg.Network.Endpoints)
	assert.Equal(t, 2, cfg.Network.ChainID)
	assert.Equal(t, "env", cfg.Account.Signer.Type)
	assert.Equal(t, "ACTIONLOG_PRIVATE_KEY", cfg.Account.Signer.Key)
	assert.Equal(t, sequencer.DefaultModuleName, cfg.Contract.Module)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "random", cfg.Trade.Provider)
	assert.Equal(t, logz.INFO, cfg.Level())

	seq := cfg.ToSequencerConfig()
	require.NoError(t, seq.Validate())
	assert.Equal(t, 3, seq.MaxSequenceRetries)
	assert.Equal(t, uint8(2), seq.ChainID)
	assert.Equal(t, uint64(0), seq.GasUnitPrice)
	assert.Equal(t, sequencer.DefaultConfig().ConfirmTimeout, seq.ConfirmTimeout)
}

func TestLoad(t *testing.T) {
	data := `
network:
  profile: local
  timeout: 3s
account:
  signer:
    type: dev
contract:
  address: "0x1"
  module: journal
  function: append
gas:
  maxAmount: 2000
  unitPrice: 150
submission:
  maxSequenceRetries: 0
  retryDelay: 10ms
  maxRetryDelay: 1s
  confirmTimeout: 45s
  queueSize: 8
storage:
  backend: badger
  path: /tmp/receipts
logLevel: debug
trade:
  pair: ETH/USDT
  confirm: true
  leverage: 3
  tradeSize: "12.5"
`
	path := filepath.Join(t.TempDir(), "actionlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://127.0.0.1:8080"}, cfg.Network.Endpoints)
	assert.Equal(t, 4, cfg.Network.ChainID)
	assert.Equal(t, "badger", cfg.Storage.Backend)

	seq := cfg.ToSequencerConfig()
	assert.Equal(t, ledger.MustParseAddress("0x1"), seq.Module.Address)
	assert.Equal(t, "journal", seq.Module.Name)
	assert.Equal(t, "append", seq.Function)
	assert.Equal(t, uint64(2000), seq.MaxGasAmount)
	assert.Equal(t, uint64(150), seq.GasUnitPrice)
	assert.Equal(t, 0, seq.MaxSequenceRetries, "explicit zero survives defaults")
	assert.Equal(t, 10*time.Millisecond, seq.RetryDelay)
	assert.Equal(t, 45*time.Second, seq.ConfirmTimeout)
	assert.Equal(t, 8, seq.QueueSize)

	client := cfg.ToClientConfig()
	assert.Equal(t, 3*time.Second, client.Timeout)
	assert.True(t, client.Debug)

	opts, err := cfg.TradeOptions()
	require.NoError(t, err)
	assert.True(t, opts.Confirm)
	assert.Equal(t, 3, opts.Leverage)
	assert.Equal(t, "12.50", opts.TradeSize.StringFixed(2))

	assert.Contains(t, cfg.String(), "local")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("network: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown profile", "network: {profile: moonnet}"},
		{"empty endpoint", "network: {endpoints: ['']}"},
		{"chain id overflow", "network: {chainId: 300}"},
		{"bad account address", "account: {address: 'not-hex'}"},
		{"bad signer type", "account: {signer: {type: hsm}}"},
		{"bad contract address", "contract: {address: 'zz'}"},
		{"bad duration", "submission: {pollInterval: soon}"},
		{"negative retries", "submission: {maxNetworkRetries: -1}"},
		{"max delay below delay", "submission: {retryDelay: 2s, maxRetryDelay: 1s}"},
		{"bad storage backend", "storage: {backend: postgres}"},
		{"bad log level", "logLevel: loud"},
		{"bad provider", "trade: {provider: oracle}"},
		{"bad price source", "trade: {priceSource: ticker}"},
		{"bad trade size", "trade: {tradeSize: lots}"},
		{"negative trade size", "trade: {tradeSize: '-1'}"},
		{"negative leverage", "trade: {leverage: -2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
