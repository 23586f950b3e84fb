package sequencer

import (
	"fmt"
	"time"

	"github.com/opendlt/actionlog/types/ledger"
)

// Defaults match the published ai_trading_log contract on testnet
const (
	DefaultContractAddress = "0xe0f5d08c01462815ff2ae4816eaa6678f77fa26722d4e9ee456acfe966414b45"
	DefaultModuleName      = "ai_trading_log"
	DefaultFunction        = "log_trade"
)

// Config defines the configuration for the action log orchestrator
type Config struct {
	// Target entry function
	Module   ledger.ModuleID `json:"module"`
	Function string          `json:"function"`

	// Envelope settings
	MaxGasAmount uint64        `json:"max_gas_amount"`
	GasUnitPrice uint64        `json:"gas_unit_price"` // 0 asks the network for an estimate
	TTL          time.Duration `json:"ttl"`
	ChainID      uint8         `json:"chain_id"`

	// Retry bounds
	MaxSequenceRetries int           `json:"max_sequence_retries"`
	MaxNetworkRetries  int           `json:"max_network_retries"`
	RetryDelay         time.Duration `json:"retry_delay"`
	MaxRetryDelay      time.Duration `json:"max_retry_delay"`

	// Confirmation polling
	PollInterval   time.Duration `json:"poll_interval"`
	ConfirmTimeout time.Duration `json:"confirm_timeout"`

	// Pending actions allowed before LogAction blocks
	QueueSize int `json:"queue_size"`
}

// DefaultConfig returns a default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		Module: ledger.ModuleID{
			Address: ledger.MustParseAddress(DefaultContractAddress),
			Name:    DefaultModuleName,
		},
		Function: DefaultFunction,

		MaxGasAmount: 1000,
		GasUnitPrice: 100,
		TTL:          600 * time.Second,
		ChainID:      2,

		MaxSequenceRetries: 3,
		MaxNetworkRetries:  3,
		RetryDelay:         500 * time.Millisecond,
		MaxRetryDelay:      5 * time.Second,

		PollInterval:   time.Second,
		ConfirmTimeout: 30 * time.Second,

		QueueSize: 64,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Module.Address.IsZero() || c.Module.Name == "" {
		return fmt.Errorf("%w: module must be set", ledger.ErrInvalidParameters)
	}
	if c.Function == "" {
		return fmt.Errorf("%w: function must be set", ledger.ErrInvalidParameters)
	}
	if c.MaxGasAmount == 0 {
		return fmt.Errorf("%w: max gas amount must be positive", ledger.ErrInvalidParameters)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ledger.ErrInvalidParameters)
	}
	if c.MaxSequenceRetries < 0 || c.MaxNetworkRetries < 0 {
		return fmt.Errorf("%w: retry bounds cannot be negative", ledger.ErrInvalidParameters)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry delay must be positive", ledger.ErrInvalidParameters)
	}
	if c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("%w: max retry delay %s below retry delay %s", ledger.ErrInvalidParameters, c.MaxRetryDelay, c.RetryDelay)
	}
	if c.PollInterval <= 0 || c.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: poll interval and confirm timeout must be positive", ledger.ErrInvalidParameters)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue size must be at least 1", ledger.ErrInvalidParameters)
	}
	return nil
}
