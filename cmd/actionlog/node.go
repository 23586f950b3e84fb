package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/bridge/pricefeed"
	"github.com/opendlt/actionlog/internal/config"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/internal/health"
	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/internal/rpc"
	"github.com/opendlt/actionlog/sequencer"
	"github.com/opendlt/actionlog/strategy"
	"github.com/opendlt/actionlog/types/ledger"
)

const (
	memoryJournalSize = 4096
	shutdownTimeout   = 10 * time.Second
)

// openJournal opens the receipt journal selected by the storage section
func openJournal(cfg *config.Config) (sequencer.Journal, error) {
	switch cfg.Storage.Backend {
	case "badger":
		if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return sequencer.NewBadgerJournal(cfg.Storage.Path)
	case "memory":
		return sequencer.NewMemoryJournal(memoryJournalSize), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %s", cfg.Storage.Backend)
	}
}

// priceSource builds the configured price source. The returned stop function
// is never nil.
func priceSource(ctx context.Context, cfg *config.Config) (pricefeed.Source, func(), error) {
	noop := func() {}

	switch cfg.Trade.PriceSource {
	case "none":
		return nil, noop, nil
	case "binance":
		stream, err := pricefeed.NewBinanceStream(cfg.Trade.BinanceURL, cfg.Trade.Pair)
		if err != nil {
			return nil, noop, err
		}
		if err := stream.Start(ctx); err != nil {
			return nil, noop, err
		}
		// fall back to CoinGecko until the stream delivers a trade
		gecko := newCoinGecko(cfg)
		return pricefeed.Chain{stream, gecko}, func() { stream.Stop() }, nil
	default:
		return newCoinGecko(cfg), noop, nil
	}
}

func newCoinGecko(cfg *config.Config) *pricefeed.CoinGecko {
	geckoCfg := pricefeed.DefaultCoinGeckoConfig()
	if cfg.Trade.CoinGeckoURL != "" {
		geckoCfg.BaseURL = cfg.Trade.CoinGeckoURL
	}
	return pricefeed.NewCoinGecko(geckoCfg)
}

// predictionProvider builds the configured prediction provider
func predictionProvider(ctx context.Context, cfg *config.Config, prices pricefeed.Source) (strategy.PredictionProvider, error) {
	switch cfg.Trade.Provider {
	case "gemini":
		apiKey := os.Getenv(cfg.Trade.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("gemini provider requires %s to be set", cfg.Trade.APIKeyEnv)
		}
		return strategy.NewGeminiProvider(ctx, apiKey, cfg.Trade.Model, prices)
	default:
		return strategy.NewRandomProvider(nil, prices), nil
	}
}

// runNode wires every component and blocks until ctx is done
func runNode(ctx context.Context, cfg *config.Config) error {
	level := cfg.Level()
	logger := logz.New(level, "node")
	logger.Info("Starting with %s", cfg)

	keys, err := signer.NewFromConfig(&cfg.Account.Signer)
	if err != nil {
		return fmt.Errorf("failed to load signer: %w", err)
	}
	if cfg.Account.Address != "" {
		addr, err := ledger.ParseAddress(cfg.Account.Address)
		if err != nil {
			return fmt.Errorf("invalid account address: %w", err)
		}
		keys = keys.WithAddress(addr)
	}

	client, err := ledgerapi.NewClient(cfg.ToClientConfig())
	if err != nil {
		return fmt.Errorf("failed to create node client: %w", err)
	}
	defer client.Close()
	client.Endpoints().Start(ctx)

	seqCfg := cfg.ToSequencerConfig()
	if seqCfg.ChainID == 0 {
		info, err := client.LedgerInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch chain id: %w", err)
		}
		seqCfg.ChainID = info.ChainID
		logger.Info("Using chain id %d reported by the node", info.ChainID)
	}

	journal, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("failed to open receipt journal: %w", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Error("Failed to close receipt journal: %v", err)
		}
	}()

	acct := sequencer.NewAccount(keys)
	orch, err := sequencer.New(seqCfg, acct, client,
		sequencer.WithJournal(journal),
		sequencer.WithLogger(logz.New(level, "sequencer")),
	)
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orch.Stop()
	logger.Info("Logging actions for %s to %s::%s", acct.Address, seqCfg.Module, seqCfg.Function)

	prices, stopPrices, err := priceSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start price source: %w", err)
	}
	defer stopPrices()

	var trader rpc.Trader
	if provider, err := predictionProvider(ctx, cfg, prices); err != nil {
		logger.Warn("Trading disabled: %v", err)
	} else {
		trader = strategy.NewExecutor(provider, orch)
	}

	server := rpc.NewServer(&rpc.Dependencies{
		Log:     orch,
		Node:    client,
		Trader:  trader,
		Account: acct.Address,
		ChainID: seqCfg.ChainID,
		APIKeys: cfg.RPC.APIKeys,
		RPS:     cfg.RPC.RPS,
		Burst:   cfg.RPC.Burst,
	})
	if err := server.Start(cfg.RPC.Listen); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	health.NewHealthChecker(orch, client).Register(mux)
	monitor := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := monitor.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error: %v", err)
		}
	}()
	logger.Info("Metrics and health on %s", cfg.Metrics.Listen)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("RPC server shutdown: %v", err)
	}
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown: %v", err)
	}
	return nil
}
