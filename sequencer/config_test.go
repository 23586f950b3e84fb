package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/types/ledger"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ai_trading_log", cfg.Module.Name)
	assert.Equal(t, "log_trade", cfg.Function)
	assert.Equal(t, 3, cfg.MaxSequenceRetries)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero module address", func(c *Config) { c.Module.Address = ledger.Address{} }},
		{"empty function", func(c *Config) { c.Function = "" }},
		{"zero gas", func(c *Config) { c.MaxGasAmount = 0 }},
		{"zero ttl", func(c *Config) { c.TTL = 0 }},
		{"negative retries", func(c *Config) { c.MaxSequenceRetries = -1 }},
		{"zero retry delay", func(c *Config) { c.RetryDelay = 0 }},
		{"max delay below delay", func(c *Config) { c.MaxRetryDelay = c.RetryDelay / 2 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero confirm timeout", func(c *Config) { c.ConfirmTimeout = -time.Second }},
		{"empty queue", func(c *Config) { c.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ledger.ErrInvalidParameters)
		})
	}
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "confirmation_timeout", failureReason(&LogError{Err: ErrConfirmationTimeout}))
	assert.Equal(t, "rejected", failureReason(ErrTransactionRejected))
	assert.Equal(t, "invalid_parameters", failureReason(ledger.ErrInvalidParameters))
	assert.Equal(t, "other", failureReason(assert.AnError))
}
