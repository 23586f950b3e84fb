package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/internal/netprofiles"
	"github.com/opendlt/actionlog/sequencer"
	"github.com/opendlt/actionlog/strategy"
	"github.com/opendlt/actionlog/types/ledger"
)

// Config represents the action log daemon configuration
type Config struct {
	Network struct {
		Profile   string   `yaml:"profile"`   // "local" | "devnet" | "testnet" | "mainnet"
		Endpoints []string `yaml:"endpoints"` // overrides the profile's endpoints
		ChainID   int      `yaml:"chainId"`   // 0 uses the profile's chain id
		Timeout   string   `yaml:"timeout"`
	} `yaml:"network"`
	Account struct {
		Address string              `yaml:"address"` // only for accounts whose key was rotated
		Signer  signer.SignerConfig `yaml:"signer"`
	} `yaml:"account"`
	Contract struct {
		Address  string `yaml:"address"`
		Module   string `yaml:"module"`
		Function string `yaml:"function"`
	} `yaml:"contract"`
	Gas struct {
		MaxAmount uint64 `yaml:"maxAmount"`
		UnitPrice uint64 `yaml:"unitPrice"` // 0 asks the node for an estimate
	} `yaml:"gas"`
	Submission struct {
		TTL                string `yaml:"ttl"`
		MaxSequenceRetries *int   `yaml:"maxSequenceRetries"`
		MaxNetworkRetries  *int   `yaml:"maxNetworkRetries"`
		RetryDelay         string `yaml:"retryDelay"`
		MaxRetryDelay      string `yaml:"maxRetryDelay"`
		PollInterval       string `yaml:"pollInterval"`
		ConfirmTimeout     string `yaml:"confirmTimeout"`
		QueueSize          int    `yaml:"queueSize"`
	} `yaml:"submission"`
	Storage struct {
		Backend string `yaml:"backend"` // "memory" | "badger"
		Path    string `yaml:"path"`    // e.g. "data/receipts"
	} `yaml:"storage"`
	RPC struct {
		Listen  string   `yaml:"listen"`
		APIKeys []string `yaml:"apiKeys"`
		RPS     float64  `yaml:"rps"`
		Burst   int      `yaml:"burst"`
	} `yaml:"rpc"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	LogLevel string `yaml:"logLevel"`
	Trade    struct {
		Pair         string `yaml:"pair"`
		Provider     string `yaml:"provider"` // "random" | "gemini"
		Model        string `yaml:"model"`
		APIKeyEnv    string `yaml:"apiKeyEnv"`
		PriceSource  string `yaml:"priceSource"` // "coingecko" | "binance" | "none"
		CoinGeckoURL string `yaml:"coingeckoURL"`
		BinanceURL   string `yaml:"binanceURL"`
		Confirm      bool   `yaml:"confirm"`
		Leverage     int    `yaml:"leverage"`
		OrderType    string `yaml:"orderType"`
		TradeSize    string `yaml:"tradeSize"`
	} `yaml:"trade"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Reparse reapplies defaults and validation after fields were changed in
// code, e.g. by command-line overrides
func Reparse(c *Config) (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return Parse(data)
}

// Default returns a validated configuration with every default applied
func Default() *Config {
	config, err := Parse(nil)
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return config
}

// setDefaults sets default values for empty fields
func (c *Config) setDefaults() error {
	if c.Network.Profile == "" {
		c.Network.Profile = "testnet"
	}
	if profile, ok := netprofiles.GetProfile(c.Network.Profile); ok {
		if len(c.Network.Endpoints) == 0 {
			c.Network.Endpoints = append([]string(nil), profile.REST...)
		}
		if c.Network.ChainID == 0 {
			c.Network.ChainID = int(profile.ChainID)
		}
	}
	if c.Network.Timeout == "" {
		c.Network.Timeout = "15s"
	}

	if c.Account.Signer.Type == "" {
		c.Account.Signer.Type = "env"
		if c.Account.Signer.Key == "" {
			c.Account.Signer.Key = "ACTIONLOG_PRIVATE_KEY"
		}
	}

	defaults := sequencer.DefaultConfig()
	if c.Contract.Address == "" {
		c.Contract.Address = sequencer.DefaultContractAddress
	}
	if c.Contract.Module == "" {
		c.Contract.Module = sequencer.DefaultModuleName
	}
	if c.Contract.Function == "" {
		c.Contract.Function = sequencer.DefaultFunction
	}

	if c.Gas.MaxAmount == 0 {
		c.Gas.MaxAmount = defaults.MaxGasAmount
	}

	if c.Submission.TTL == "" {
		c.Submission.TTL = defaults.TTL.String()
	}
	if c.Submission.MaxSequenceRetries == nil {
		n := defaults.MaxSequenceRetries
		c.Submission.MaxSequenceRetries = &n
	}
	if c.Submission.MaxNetworkRetries == nil {
		n := defaults.MaxNetworkRetries
		c.Submission.MaxNetworkRetries = &n
	}
	if c.Submission.RetryDelay == "" {
		c.Submission.RetryDelay = defaults.RetryDelay.String()
	}
	if c.Submission.MaxRetryDelay == "" {
		c.Submission.MaxRetryDelay = defaults.MaxRetryDelay.String()
	}
	if c.Submission.PollInterval == "" {
		c.Submission.PollInterval = defaults.PollInterval.String()
	}
	if c.Submission.ConfirmTimeout == "" {
		c.Submission.ConfirmTimeout = defaults.ConfirmTimeout.String()
	}
	if c.Submission.QueueSize == 0 {
		c.Submission.QueueSize = defaults.QueueSize
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/receipts"
	}

	if c.RPC.Listen == "" {
		c.RPC.Listen = "127.0.0.1:8666"
	}
	if c.RPC.RPS == 0 {
		c.RPC.RPS = 10
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = 20
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:8667"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Trade.Pair == "" {
		c.Trade.Pair = "BTC/USDT"
	}
	if c.Trade.Provider == "" {
		c.Trade.Provider = "random"
	}
	if c.Trade.APIKeyEnv == "" {
		c.Trade.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Trade.PriceSource == "" {
		c.Trade.PriceSource = "coingecko"
	}

	return nil
}

// validate performs basic validation of config values
func (c *Config) validate() error {
	if !netprofiles.IsValidNetwork(c.Network.Profile) {
		return fmt.Errorf("unknown network profile %q, expected one of %v", c.Network.Profile, netprofiles.GetAvailableNetworks())
	}
	if len(c.Network.Endpoints) == 0 {
		return fmt.Errorf("at least one node endpoint must be specified")
	}
	for i, endpoint := range c.Network.Endpoints {
		if endpoint == "" {
			return fmt.Errorf("node endpoint %d cannot be empty", i)
		}
	}
	if c.Network.ChainID < 0 || c.Network.ChainID > 255 {
		return fmt.Errorf("chain id must fit in a byte, got %d", c.Network.ChainID)
	}

	if c.Account.Address != "" {
		if _, err := ledger.ParseAddress(c.Account.Address); err != nil {
			return fmt.Errorf("invalid account address: %w", err)
		}
	}
	switch c.Account.Signer.Type {
	case "file", "env", "dev":
	default:
		return fmt.Errorf("signer type must be 'file', 'env' or 'dev', got %s", c.Account.Signer.Type)
	}

	if _, err := c.module(); err != nil {
		return err
	}

	for name, value := range map[string]string{
		"network timeout": c.Network.Timeout,
		"ttl":             c.Submission.TTL,
		"retry delay":     c.Submission.RetryDelay,
		"max retry delay": c.Submission.MaxRetryDelay,
		"poll interval":   c.Submission.PollInterval,
		"confirm timeout": c.Submission.ConfirmTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration %s: %w", name, value, err)
		}
	}

	if err := c.ToSequencerConfig().Validate(); err != nil {
		return err
	}

	if c.Storage.Backend != "memory" && c.Storage.Backend != "badger" {
		return fmt.Errorf("storage backend must be 'memory' or 'badger', got %s", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty")
	}

	if c.RPC.RPS < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc rate limits cannot be negative")
	}

	if _, err := logz.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Trade.Provider {
	case "random", "gemini":
	default:
		return fmt.Errorf("trade provider must be 'random' or 'gemini', got %s", c.Trade.Provider)
	}
	switch c.Trade.PriceSource {
	case "coingecko", "binance", "none":
	default:
		return fmt.Errorf("price source must be 'coingecko', 'binance' or 'none', got %s", c.Trade.PriceSource)
	}
	if _, err := c.TradeOptions(); err != nil {
		return err
	}

	return nil
}

func (c *Config) module() (ledger.ModuleID, error) {
	addr, err := ledger.ParseAddress(c.Contract.Address)
	if err != nil {
		return ledger.ModuleID{}, fmt.Errorf("invalid contract address: %w", err)
	}
	if c.Contract.Module == "" || c.Contract.Function == "" {
		return ledger.ModuleID{}, fmt.Errorf("contract module and function must be set")
	}
	return ledger.ModuleID{Address: addr, Name: c.Contract.Module}, nil
}

func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		// This should not happen if validation passed
		return fallback
	}
	return d
}

// ToSequencerConfig projects the configuration onto the orchestrator's
func (c *Config) ToSequencerConfig() *sequencer.Config {
	cfg := sequencer.DefaultConfig()

	if module, err := c.module(); err == nil {
		cfg.Module = module
	}
	cfg.Function = c.Contract.Function
	cfg.MaxGasAmount = c.Gas.MaxAmount
	cfg.GasUnitPrice = c.Gas.UnitPrice
	cfg.ChainID = uint8(c.Network.ChainID)

	cfg.TTL = duration(c.Submission.TTL, cfg.TTL)
	if c.Submission.MaxSequenceRetries != nil {
		cfg.MaxSequenceRetries = *c.Submission.MaxSequenceRetries
	}
	if c.Submission.MaxNetworkRetries != nil {
		cfg.MaxNetworkRetries = *c.Submission.MaxNetworkRetries
	}
	cfg.RetryDelay = duration(c.Submission.RetryDelay, cfg.RetryDelay)
	cfg.MaxRetryDelay = duration(c.Submission.MaxRetryDelay, cfg.MaxRetryDelay)
	cfg.PollInterval = duration(c.Submission.PollInterval, cfg.PollInterval)
	cfg.ConfirmTimeout = duration(c.Submission.ConfirmTimeout, cfg.ConfirmTimeout)
	cfg.QueueSize = c.Submission.QueueSize

	return cfg
}

// ToClientConfig projects the configuration onto the node client's
func (c *Config) ToClientConfig() *ledgerapi.ClientConfig {
	cfg := ledgerapi.DefaultClientConfig(c.Network.Endpoints...)
	cfg.Timeout = duration(c.Network.Timeout, cfg.Timeout)
	cfg.Debug = strings.EqualFold(c.LogLevel, "debug")
	return cfg
}

// TradeOptions returns the configured trade overrides
func (c *Config) TradeOptions() (strategy.TradeOptions, error) {
	opts := strategy.TradeOptions{
		Confirm:   c.Trade.Confirm,
		Leverage:  c.Trade.Leverage,
		OrderType: c.Trade.OrderType,
	}
	if c.Trade.Leverage < 0 {
		return opts, fmt.Errorf("trade leverage cannot be negative, got %d", c.Trade.Leverage)
	}
	if c.Trade.TradeSize != "" {
		size, err := decimal.NewFromString(c.Trade.TradeSize)
		if err != nil {
			return opts, fmt.Errorf("invalid trade size %q: %w", c.Trade.TradeSize, err)
		}
		if size.Sign() < 0 {
			return opts, fmt.Errorf("trade size cannot be negative, got %s", size)
		}
		opts.TradeSize = size
	}
	return opts, nil
}

// Level returns the configured log level
func (c *Config) Level() logz.LogLevel {
	level, err := logz.ParseLevel(c.LogLevel)
	if err != nil {
		return logz.INFO
	}
	return level
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Network: %s, Endpoints: %v, ChainID: %d, Contract: %s::%s::%s, Signer: %s, Storage: %s}",
		c.Network.Profile, c.Network.Endpoints, c.Network.ChainID,
		c.Contract.Address, c.Contract.Module, c.Contract.Function,
		c.Account.Signer.Type, c.Storage.Backend)
}
