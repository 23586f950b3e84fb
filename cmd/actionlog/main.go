package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/opendlt/actionlog/internal/config"
	"github.com/opendlt/actionlog/internal/logz"
)

// Version is set at build time
var Version = "dev"

var (
	app        = kingpin.New("actionlog", "Records actions on-chain for a single ledger account")
	run        = app.Command("run", "Run the action log daemon").Default()
	version    = app.Command("version", "Show version information")
	configFile = run.Flag("config", "Path of config file").Short('c').String()
	network    = run.Flag("network", "Network profile, overrides the config file").Enum("local", "devnet", "testnet", "mainnet")
	listen     = run.Flag("rpc", "RPC listen address, overrides the config file").String()
)

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configFile == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}

	if *network != "" && *network != cfg.Network.Profile {
		// reapply defaults for the new profile
		cfg.Network.Profile = *network
		cfg.Network.Endpoints = nil
		cfg.Network.ChainID = 0
		reloaded, err := config.Reparse(cfg)
		if err != nil {
			return nil, err
		}
		cfg = reloaded
	}
	if *listen != "" {
		cfg.RPC.Listen = *listen
	}
	return cfg, nil
}

func main() {
	logger := logz.New(logz.LevelFromEnv(logz.INFO), "actionlog")

	fullCmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	switch fullCmd {
	case run.FullCommand():
		cfg, err := loadConfig()
		if err != nil {
			logger.Fatal("Failed to load config: %v", err)
		}
		logz.SetDefaultLevel(logz.LevelFromEnv(cfg.Level()))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runNode(ctx, cfg); err != nil {
			stop()
			logger.Fatal("%v", err)
		}
	case version.FullCommand():
		fmt.Printf("actionlog %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	default:
		logger.Fatal("Invalid command: %s", fullCmd)
	}
}
