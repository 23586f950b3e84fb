package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/sequencer"
	"github.com/opendlt/actionlog/strategy"
	"github.com/opendlt/actionlog/types/ledger"
)

// JSON-RPC error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeActionFailed   = -32000
	codeNotFound       = -32004
)

// maxBatch caps the number of actions in one actionlog.batch call
const maxBatch = 100

// ActionLog is the orchestrator surface exposed over JSON-RPC
type ActionLog interface {
	LogAction(ctx context.Context, action string) (*sequencer.Receipt, error)
	LogBatch(ctx context.Context, actions []string) ([]*sequencer.Receipt, error)
	Stats() *sequencer.Stats
	Journal() sequencer.Journal
}

// SequenceReader reads the on-chain sequence number of an account
type SequenceReader interface {
	SequenceNumber(ctx context.Context, addr ledger.Address) (uint64, error)
}

// Trader plans trades and logs the confirmed ones
type Trader interface {
	Execute(ctx context.Context, pair string, opts strategy.TradeOptions) (*strategy.Execution, error)
}

// Dependencies holds the required dependencies for the RPC server
type Dependencies struct {
	Log     ActionLog
	Node    SequenceReader // optional
	Trader  Trader         // optional
	Account ledger.Address
	ChainID uint8
	APIKeys []string
	RPS     float64
	Burst   int
}

// Server provides a JSON-RPC interface for the action log
type Server struct {
	mu      sync.RWMutex
	server  *http.Server
	log     ActionLog
	node    SequenceReader
	trader  Trader
	account ledger.Address
	chainID uint8
	auth    *APIKeyMiddleware
	limiter *RateLimiter
	logger  *logz.Logger
	running bool
}

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusResult represents the result of actionlog.status()
type StatusResult struct {
	ChainID uint8            `json:"chainId"`
	Stats   *sequencer.Stats `json:"stats"`
	Uptime  string           `json:"uptime"`
}

// LogParams represents parameters for actionlog.log()
type LogParams struct {
	Action string `json:"action"`
}

// BatchParams represents parameters for actionlog.batch()
type BatchParams struct {
	Actions []string `json:"actions"`
}

// BatchResult represents the result of actionlog.batch()
type BatchResult struct {
	Receipts []*sequencer.Receipt `json:"receipts"`
	Error    string               `json:"error,omitempty"`
}

// ReceiptParams represents parameters for actionlog.receipt()
type ReceiptParams struct {
	Key string `json:"key"` // action id or transaction hash
}

// RecentParams represents parameters for actionlog.recent()
type RecentParams struct {
	Limit int `json:"limit"`
}

// SequenceResult represents the result of actionlog.sequence()
type SequenceResult struct {
	Account  string  `json:"account"`
	Next     *uint64 `json:"next,omitempty"`
	OnChain  *uint64 `json:"onChain,omitempty"`
	NodeErr  string  `json:"nodeError,omitempty"`
	QueueLen int     `json:"queueDepth"`
}

// TradeParams represents parameters for actionlog.trade()
type TradeParams struct {
	Pair      string `json:"pair"`
	Confirm   bool   `json:"confirm"`
	Leverage  int    `json:"leverage,omitempty"`
	OrderType string `json:"orderType,omitempty"`
	TradeSize string `json:"tradeSize,omitempty"`
}

// FailureData is attached to a failed actionlog.log() error
type FailureData struct {
	Receipt   *sequencer.Receipt `json:"receipt,omitempty"`
	Retryable bool               `json:"retryable"`
	Ambiguous bool               `json:"ambiguous"`
}

// NewServer creates a new RPC server
func NewServer(deps *Dependencies) *Server {
	return &Server{
		log:     deps.Log,
		node:    deps.Node,
		trader:  deps.Trader,
		account: deps.Account,
		chainID: deps.ChainID,
		auth:    NewAPIKeyMiddleware(deps.APIKeys),
		limiter: NewRateLimiter(deps.RPS, deps.Burst),
		logger:  logz.New(logz.INFO, "rpc"),
	}
}

// Handler returns the HTTP handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.HandleFunc("/health", s.handleHealth)

	var h http.Handler = mux
	h = s.auth.Middleware(h)
	h = s.limiter.Middleware(h)
	h = SecurityHeadersMiddleware(h)
	h = LoggingMiddleware(s.logger)(h)
	return h
}

// Start starts the RPC server on the specified address
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("RPC server is already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // actionlog.log blocks until confirmation
		IdleTimeout:  30 * time.Second,
	}
	s.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("RPC server error: %v", err)
		}
	}(s.server)

	s.logger.Info("RPC server started on %s", s.server.Addr)
	return nil
}

// Stop stops the RPC server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.limiter.Close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}

	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.server != nil {
		return s.server.Addr
	}
	return ""
}

// handleRequest handles JSON-RPC requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeError(w, nil, &RPCError{Code: codeInvalidRequest, Message: "Invalid Request"})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, &RPCError{Code: codeParseError, Message: "Parse error"})
		return
	}
	if rpcErr := s.validateJSONRPC(&req); rpcErr != nil {
		metrics.IncrementRPCRequests("invalid", false)
		s.writeError(w, req.ID, rpcErr)
		return
	}

	var result interface{}
	var rpcErr *RPCError

	label := req.Method
	ctx := r.Context()
	switch req.Method {
	case "actionlog.status":
		result, rpcErr = s.handleStatus()
	case "actionlog.log":
		result, rpcErr = s.handleLog(ctx, req.Params)
	case "actionlog.batch":
		result, rpcErr = s.handleBatch(ctx, req.Params)
	case "actionlog.receipt":
		result, rpcErr = s.handleReceipt(req.Params)
	case "actionlog.recent":
		result, rpcErr = s.handleRecent(req.Params)
	case "actionlog.sequence":
		result, rpcErr = s.handleSequence(ctx)
	case "actionlog.trade":
		result, rpcErr = s.handleTrade(ctx, req.Params)
	default:
		label = "unknown"
		rpcErr = &RPCError{Code: codeMethodNotFound, Message: "Method not found"}
	}

	metrics.IncrementRPCRequests(label, rpcErr == nil)
	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr)
	} else {
		s.writeResult(w, req.ID, result)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	stats := s.log.Stats()
	if !stats.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"running":   stats.Running,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus() (interface{}, *RPCError) {
	stats := s.log.Stats()
	return &StatusResult{
		ChainID: s.chainID,
		Stats:   stats,
		Uptime:  stats.Uptime.String(),
	}, nil
}

func (s *Server) handleLog(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	var params LogParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Action) == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Missing required field: action"}
	}

	rc, err := s.log.LogAction(ctx, params.Action)
	if err != nil {
		return nil, failure(rc, err)
	}
	return rc, nil
}

func (s *Server) handleBatch(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	var params BatchParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if len(params.Actions) == 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Missing required field: actions"}
	}
	if len(params.Actions) > maxBatch {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("Too many actions: %d (max: %d)", len(params.Actions), maxBatch)}
	}
	for i, action := range params.Actions {
		if strings.TrimSpace(action) == "" {
			return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("Action %d is empty", i)}
		}
	}

	receipts, err := s.log.LogBatch(ctx, params.Actions)
	result := &BatchResult{Receipts: receipts}
	if err != nil {
		if len(receipts) == 0 {
			return nil, failure(nil, err)
		}
		// partial batches still report what was logged
		result.Error = err.Error()
	}
	return result, nil
}

func (s *Server) handleReceipt(raw json.RawMessage) (interface{}, *RPCError) {
	var params ReceiptParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Key == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Missing required field: key"}
	}

	rc, err := s.log.Journal().Get(params.Key)
	if errors.Is(err, sequencer.ErrReceiptNotFound) {
		return nil, &RPCError{Code: codeNotFound, Message: fmt.Sprintf("Receipt not found: %s", params.Key)}
	}
	if err != nil {
		return nil, &RPCError{Code: codeInternal, Message: err.Error()}
	}
	return rc, nil
}

func (s *Server) handleRecent(raw json.RawMessage) (interface{}, *RPCError) {
	params := RecentParams{Limit: 20}
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit < 1 || params.Limit > 1000 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Limit must be between 1 and 1000"}
	}

	receipts, err := s.log.Journal().Recent(params.Limit)
	if err != nil {
		return nil, &RPCError{Code: codeInternal, Message: err.Error()}
	}
	if receipts == nil {
		receipts = []*sequencer.Receipt{}
	}
	return receipts, nil
}

func (s *Server) handleSequence(ctx context.Context) (interface{}, *RPCError) {
	stats := s.log.Stats()
	result := &SequenceResult{
		Account:  s.account.String(),
		QueueLen: stats.QueueDepth,
	}
	if stats.SequenceKnown {
		next := stats.NextSequence
		result.Next = &next
	}

	if s.node != nil {
		seq, err := s.node.SequenceNumber(ctx, s.account)
		if err != nil {
			result.NodeErr = err.Error()
		} else {
			result.OnChain = &seq
		}
	}
	return result, nil
}

func (s *Server) handleTrade(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	if s.trader == nil {
		return nil, &RPCError{Code: codeInternal, Message: "Trading not enabled"}
	}

	var params TradeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Pair == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "Missing required field: pair"}
	}

	opts := strategy.TradeOptions{
		Confirm:   params.Confirm,
		Leverage:  params.Leverage,
		OrderType: params.OrderType,
	}
	if params.TradeSize != "" {
		size, err := decimal.NewFromString(params.TradeSize)
		if err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("Invalid trade size: %s", params.TradeSize)}
		}
		opts.TradeSize = size
	}

	exec, err := s.trader.Execute(ctx, params.Pair, opts)
	switch {
	case errors.Is(err, strategy.ErrDeclined):
		return exec, nil
	case err != nil && exec != nil:
		// planned but logging failed
		return nil, failure(exec.Receipt, err)
	case err != nil:
		return nil, &RPCError{Code: codeInternal, Message: err.Error()}
	}
	return exec, nil
}

// failure converts a logging error into an RPC error carrying the receipt
func failure(rc *sequencer.Receipt, err error) *RPCError {
	if errors.Is(err, ledger.ErrInvalidParameters) {
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}

	data := &FailureData{Receipt: rc}
	var logErr *sequencer.LogError
	if errors.As(err, &logErr) {
		data.Retryable = logErr.Retryable()
		data.Ambiguous = logErr.Ambiguous()
	}
	return &RPCError{Code: codeActionFailed, Message: err.Error(), Data: data}
}

func decodeParams(raw json.RawMessage, out interface{}) *RPCError {
	if len(raw) == 0 {
		return &RPCError{Code: codeInvalidParams, Message: "Invalid params"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "Invalid params structure"}
	}
	return nil
}

// writeResult writes a successful JSON-RPC response
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result})
}

// writeError writes an error JSON-RPC response
func (s *Server) writeError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.WriteHeader(http.StatusOK) // JSON-RPC errors still return 200
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// validateJSONRPC performs basic JSON-RPC validation
func (s *Server) validateJSONRPC(req *Request) *RPCError {
	if req.Method == "" {
		return &RPCError{Code: codeInvalidRequest, Message: "Missing method"}
	}

	if !strings.HasPrefix(req.Method, "actionlog.") {
		return &RPCError{Code: codeMethodNotFound, Message: "Method not found"}
	}

	return nil
}
