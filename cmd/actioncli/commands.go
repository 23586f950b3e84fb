package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/bridge/pricefeed"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/internal/netprofiles"
	"github.com/opendlt/actionlog/internal/rpc"
	"github.com/opendlt/actionlog/sequencer"
	"github.com/opendlt/actionlog/strategy"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get orchestrator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result rpc.StatusResult
			if err := makeRPCCall(cmd.Context(), "actionlog.status", nil, &result); err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
}

// printFailure shows the receipt attached to a failed call before returning err
func printFailure(err error) error {
	var ce *callError
	if errors.As(err, &ce) && ce.Data != nil {
		prettyPrint(ce.Data)
	}
	return err
}

func logCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log <action>",
		Short: "Log an action on-chain and wait for confirmation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rc sequencer.Receipt
			err := makeRPCCall(cmd.Context(), "actionlog.log", rpc.LogParams{Action: strings.Join(args, " ")}, &rc)
			if err != nil {
				return printFailure(err)
			}
			prettyPrint(rc)
			return nil
		},
	}
}

func batchCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "batch [action...]",
		Short: "Log several actions in order, one per argument or line of --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions := append([]string(nil), args...)
			if file != "" {
				lines, err := readLines(file)
				if err != nil {
					return err
				}
				actions = append(actions, lines...)
			}
			if len(actions) == 0 {
				return fmt.Errorf("no actions given")
			}

			var result rpc.BatchResult
			if err := makeRPCCall(cmd.Context(), "actionlog.batch", rpc.BatchParams{Actions: actions}, &result); err != nil {
				return printFailure(err)
			}
			prettyPrint(result)
			if result.Error != "" {
				return fmt.Errorf("batch stopped after %d of %d actions: %s", len(result.Receipts), len(actions), result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "File with one action per line")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func tradeCommand() *cobra.Command {
	var params rpc.TradeParams

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Ask the prediction provider for a trade and log it when confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var exec strategy.Execution
			if err := makeRPCCall(cmd.Context(), "actionlog.trade", params, &exec); err != nil {
				return printFailure(err)
			}
			prettyPrint(exec)
			if exec.Receipt == nil {
				fmt.Println("Trade not confirmed; nothing was logged. Pass --confirm to log it.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Pair, "pair", "BTC/USDT", "Trading pair")
	cmd.Flags().BoolVar(&params.Confirm, "confirm", false, "Log the trade on-chain")
	cmd.Flags().IntVar(&params.Leverage, "leverage", 0, "Override the suggested leverage")
	cmd.Flags().StringVar(&params.OrderType, "order-type", "", "Override the suggested order type")
	cmd.Flags().StringVar(&params.TradeSize, "size", "", "Override the suggested trade size")
	return cmd
}

func receiptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <action-id|tx-hash>",
		Short: "Show a journaled receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rc sequencer.Receipt
			if err := makeRPCCall(cmd.Context(), "actionlog.receipt", rpc.ReceiptParams{Key: args[0]}, &rc); err != nil {
				return err
			}
			prettyPrint(rc)
			return nil
		},
	}
}

func recentCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent receipts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var receipts []*sequencer.Receipt
			if err := makeRPCCall(cmd.Context(), "actionlog.recent", rpc.RecentParams{Limit: limit}, &receipts); err != nil {
				return err
			}
			for _, rc := range receipts {
				fmt.Printf("%-10s seq=%-6d %s %q\n", rc.State, rc.SequenceNumber, rc.Hash, rc.Action)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of receipts")
	return cmd
}

func sequenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sequence",
		Short: "Show the local and on-chain sequence numbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result rpc.SequenceResult
			if err := makeRPCCall(cmd.Context(), "actionlog.sequence", nil, &result); err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
}

// nodeClient builds a direct ledger node client from --node or --network
func nodeClient(node, network string) (*ledgerapi.Client, error) {
	endpoints := []string{node}
	if node == "" {
		profile, ok := netprofiles.GetProfile(network)
		if !ok {
			return nil, fmt.Errorf("unknown network %s, expected one of %v", network, netprofiles.GetAvailableNetworks())
		}
		endpoints = profile.REST
	}
	return ledgerapi.NewClient(ledgerapi.DefaultClientConfig(endpoints...))
}

func txCommand() *cobra.Command {
	var node, network string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "tx <hash>",
		Short: "Query a transaction directly from the ledger node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := nodeClient(node, network)
			if err != nil {
				return err
			}
			defer client.Close()

			if wait > 0 {
				result, err := client.AwaitConfirmation(cmd.Context(), args[0], time.Second, wait)
				if err != nil {
					return err
				}
				prettyPrint(result)
				return nil
			}

			status, err := client.TransactionStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prettyPrint(status)
			return nil
		},
	}

	cmd.Flags().StringVar(&node, "node", "", "Ledger node URL, overrides --network")
	cmd.Flags().StringVar(&network, "network", "testnet", "Network profile")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll until the transaction is terminal or this much time passed")
	return cmd
}

func priceCommand() *cobra.Command {
	var to string
	var stream bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "price <symbol|pair>",
		Short: "Show the current USD price of a coin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if stream {
				price, err := streamPrice(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", args[0], price)
				return nil
			}

			gecko := pricefeed.NewCoinGecko(pricefeed.DefaultCoinGeckoConfig())
			symbol := pricefeed.PairBase(args[0])
			if to != "" {
				value, err := gecko.Convert(ctx, symbol, to, decimal.NewFromInt(1))
				if err != nil {
					return err
				}
				fmt.Printf("1 %s = %s %s\n", strings.ToUpper(symbol), value, strings.ToUpper(to))
				return nil
			}

			price, err := gecko.Price(ctx, symbol)
			if err != nil {
				return err
			}
			fmt.Printf("%s $%s (%s)\n", strings.ToUpper(symbol), price.StringFixed(2), strategy.Signal(price))
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Convert into another coin instead of USD")
	cmd.Flags().BoolVar(&stream, "stream", false, "Read the last trade from the Binance stream instead")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	return cmd
}

// streamPrice waits for the first trade of pair on the Binance stream
func streamPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	bs, err := pricefeed.NewBinanceStream("", pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := bs.Start(ctx); err != nil {
		return decimal.Decimal{}, err
	}
	defer bs.Stop()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if price, err := bs.Price(ctx, pair); err == nil {
			return price, nil
		}
		select {
		case <-ctx.Done():
			return decimal.Decimal{}, fmt.Errorf("no trade for %s: %w", pair, ctx.Err())
		case <-ticker.C:
		}
	}
}

func marketsCommand() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "markets",
		Short: "List the top coins by market cap with a price signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			gecko := pricefeed.NewCoinGecko(pricefeed.DefaultCoinGeckoConfig())
			coins, err := gecko.Markets(cmd.Context(), top)
			if err != nil {
				return err
			}
			for _, c := range coins {
				fmt.Printf("%3d. %-8s %-24s $%-14s %s\n", c.Rank, strings.ToUpper(c.Symbol), c.Name, c.Price.StringFixed(2), strategy.Signal(c.Price))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "Number of coins (1-250)")
	return cmd
}

func signalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signal <price>",
		Short: "Classify a USD price as BUY, HOLD or SELL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[0], err)
			}
			fmt.Println(strategy.Signal(price))
			return nil
		},
	}
}

func keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Key management",
	}

	var cfg signer.SignerConfig
	address := &cobra.Command{
		Use:   "address",
		Short: "Show the account address and public key of a signer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Type == "env" && cfg.Key == "" {
				cfg.Key = "ACTIONLOG_PRIVATE_KEY"
			}
			keys, err := signer.NewFromConfig(&cfg)
			if err != nil {
				return err
			}
			prettyPrint(map[string]string{
				"address":   keys.Address().String(),
				"publicKey": "0x" + hex.EncodeToString(keys.PublicKey()),
				"signer":    keys.KeyAlias(),
			})
			return nil
		},
	}
	address.Flags().StringVar(&cfg.Type, "type", "env", "Signer type: file, env or dev")
	address.Flags().StringVar(&cfg.Key, "key", "", "Key file path or environment variable name; for dev, an optional raw key")

	cmd.AddCommand(address)
	return cmd
}
