package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendlt/actionlog/internal/rpc"
)

var (
	rpcEndpoint = "http://127.0.0.1:8666"
	apiKey      string
	httpClient  = &http.Client{Timeout: 5 * time.Minute}
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "actioncli",
		Short:        "Action log CLI for logging actions and checking their status",
		Long:         "Command-line interface for the actionlog daemon, the ledger node and the price feeds",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&rpcEndpoint, "rpc", "http://127.0.0.1:8666", "RPC endpoint URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("ACTIONLOG_API_KEY"), "API key sent as X-API-Key")

	rootCmd.AddCommand(
		statusCommand(),
		logCommand(),
		batchCommand(),
		tradeCommand(),
		receiptCommand(),
		recentCommand(),
		sequenceCommand(),
		txCommand(),
		priceCommand(),
		marketsCommand(),
		signalCommand(),
		keysCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// callError is a JSON-RPC error returned by the daemon
type callError struct {
	*rpc.RPCError
}

func (e *callError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// makeRPCCall invokes method on the daemon and decodes the result into out
func makeRPCCall(ctx context.Context, method string, params, out interface{}) error {
	reqBytes, err := json.Marshal(rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: mustRaw(params)})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcEndpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}
	if envelope.Error != nil {
		return &callError{envelope.Error}
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %v", err)
	}
	return nil
}

func mustRaw(params interface{}) json.RawMessage {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return data
}

// prettyPrint prints data as indented JSON
func prettyPrint(data interface{}) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Printf("Error formatting output: %v\n", err)
		fmt.Printf("%+v\n", data)
		return
	}
	fmt.Println(string(jsonBytes))
}
