package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/opendlt/actionlog/internal/logz"
)

// DefaultBinanceStreamURL is the public Binance market stream endpoint
const DefaultBinanceStreamURL = "wss://stream.binance.com:9443"

// Tick is the latest trade seen for a symbol
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// tradeEvent is the payload of a <symbol>@trade stream message
type tradeEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Time   int64  `json:"T"`
}

// BinanceStream keeps the last trade price of a set of symbols from the
// Binance websocket trade streams
type BinanceStream struct {
	mu             sync.RWMutex
	wsURL          string
	symbols        []string
	ticks          map[string]Tick
	conn           *websocket.Conn
	connected      bool
	logger         *logz.Logger
	reconnectDelay time.Duration
	readTimeout    time.Duration
	maxAge         time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Source = (*BinanceStream)(nil)

// NewBinanceStream creates a stream for pair symbols such as "BTC/USDT" or
// "btcusdt"
func NewBinanceStream(baseURL string, symbols ...string) (*BinanceStream, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	if baseURL == "" {
		baseURL = DefaultBinanceStreamURL
	}

	streams := make([]string, 0, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		s := streamSymbol(sym)
		normalized = append(normalized, s)
		streams = append(streams, s+"@trade")
	}

	return &BinanceStream{
		wsURL:          strings.TrimRight(baseURL, "/") + "/stream?streams=" + strings.Join(streams, "/"),
		symbols:        normalized,
		ticks:          make(map[string]Tick),
		logger:         logz.New(logz.INFO, "binance-stream"),
		reconnectDelay: 5 * time.Second,
		readTimeout:    60 * time.Second,
		maxAge:         time.Minute,
	}, nil
}

// SetReconnectDelay sets the pause between connection attempts
func (bs *BinanceStream) SetReconnectDelay(d time.Duration) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.reconnectDelay = d
}

// SetMaxAge sets how old a tick may be before Price reports it unavailable
func (bs *BinanceStream) SetMaxAge(d time.Duration) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.maxAge = d
}

// Start connects in the background and reconnects until ctx ends or Stop is called
func (bs *BinanceStream) Start(ctx context.Context) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.done != nil {
		return fmt.Errorf("stream already started")
	}

	ctx, bs.cancel = context.WithCancel(ctx)
	bs.done = make(chan struct{})

	bs.logger.Info("Starting Binance trade stream: %s", bs.wsURL)
	go bs.connectionLoop(ctx, bs.done)
	return nil
}

// Stop closes the connection and waits for the loop to exit
func (bs *BinanceStream) Stop() error {
	bs.mu.Lock()
	cancel, done := bs.cancel, bs.done
	if bs.conn != nil {
		bs.conn.Close()
	}
	bs.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	bs.logger.Info("Binance trade stream stopped")
	return nil
}

// Connected reports whether the websocket is currently up
func (bs *BinanceStream) Connected() bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.connected
}

// Latest returns the last tick for symbol
func (bs *BinanceStream) Latest(symbol string) (Tick, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	tick, ok := bs.ticks[streamSymbol(symbol)]
	return tick, ok
}

// Price returns the last traded price for symbol if it is fresh enough
func (bs *BinanceStream) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	tick, ok := bs.Latest(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no trades seen for %s", ErrUnavailable, symbol)
	}

	bs.mu.RLock()
	maxAge := bs.maxAge
	bs.mu.RUnlock()

	if maxAge > 0 && time.Since(tick.At) > maxAge {
		return decimal.Zero, fmt.Errorf("%w: last trade for %s is %s old", ErrUnavailable, symbol, time.Since(tick.At).Round(time.Second))
	}
	return tick.Price, nil
}

// connectionLoop manages the websocket connection with automatic reconnection
func (bs *BinanceStream) connectionLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if err := bs.connect(ctx); err != nil {
			bs.logger.Info("Failed to connect to Binance stream: %v", err)
		} else {
			bs.handleConnection(ctx)

			bs.mu.Lock()
			bs.connected = false
			if bs.conn != nil {
				bs.conn.Close()
				bs.conn = nil
			}
			bs.mu.Unlock()
		}

		bs.mu.RLock()
		delay := bs.reconnectDelay
		bs.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connect establishes the websocket connection
func (bs *BinanceStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, bs.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	bs.mu.Lock()
	bs.conn = conn
	bs.connected = true
	bs.mu.Unlock()

	bs.logger.Info("Connected to Binance stream for %s", strings.Join(bs.symbols, ","))
	return nil
}

// handleConnection reads trade messages until the connection drops or ctx ends
func (bs *BinanceStream) handleConnection(ctx context.Context) {
	bs.mu.RLock()
	conn := bs.conn
	bs.mu.RUnlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	// the server pings every few minutes; the default handler answers with a pong
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(bs.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(bs.readTimeout))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				bs.logger.Debug("Websocket read error: %v", err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			bs.handleMessage(data)
		}
	}
}

// handleMessage accepts both combined-stream envelopes and raw trade events
func (bs *BinanceStream) handleMessage(data []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		bs.logger.Debug("Failed to unmarshal message: %v", err)
		return
	}

	body := data
	if len(envelope.Data) > 0 {
		body = envelope.Data
	}

	var ev tradeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		bs.logger.Debug("Failed to unmarshal trade event: %v", err)
		return
	}
	if ev.Event != "trade" || ev.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		bs.logger.Debug("Invalid price %q for %s: %v", ev.Price, ev.Symbol, err)
		return
	}

	at := time.Now()
	if ev.Time > 0 {
		at = time.UnixMilli(ev.Time)
	}

	sym := strings.ToLower(ev.Symbol)
	bs.mu.Lock()
	bs.ticks[sym] = Tick{Symbol: sym, Price: price, At: at}
	bs.mu.Unlock()
}

// streamSymbol turns "BTC/USDT", "btc-usdt" or "BTC" into "btcusdt"
func streamSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	if !strings.HasSuffix(s, "usdt") {
		s += "usdt"
	}
	return s
}
