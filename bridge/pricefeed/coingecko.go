package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/opendlt/actionlog/internal/logz"
)

// DefaultCoinGeckoURL is the public CoinGecko API
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinIDs maps common ticker symbols to CoinGecko IDs
var CoinIDs = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"bnb":   "binancecoin",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"matic": "matic-network",
	"dot":   "polkadot",
	"ltc":   "litecoin",
	"sol":   "solana",
	"apt":   "aptos",
}

// CoinGecko is a REST price source
type CoinGecko struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logz.Logger

	mu      sync.Mutex
	listed  map[string]string // symbol -> id from /coins/list
	fetched bool
}

var _ Source = (*CoinGecko)(nil)

// CoinGeckoConfig configures the CoinGecko client
type CoinGeckoConfig struct {
	BaseURL string
	Timeout time.Duration
	// Requests per second; the public API allows roughly one every two seconds
	RateLimit float64
	Burst     int
}

// DefaultCoinGeckoConfig returns the public API settings
func DefaultCoinGeckoConfig() *CoinGeckoConfig {
	return &CoinGeckoConfig{
		BaseURL:   DefaultCoinGeckoURL,
		Timeout:   5 * time.Second,
		RateLimit: 0.5,
		Burst:     3,
	}
}

// NewCoinGecko creates a CoinGecko client
func NewCoinGecko(cfg *CoinGeckoConfig) *CoinGecko {
	if cfg == nil {
		cfg = DefaultCoinGeckoConfig()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logz.New(logz.INFO, "coingecko"),
	}
}

// CoinID resolves a ticker symbol or pair to a CoinGecko ID. Unknown symbols
// are looked up in /coins/list; failing that the lowercased input is used as
// the ID itself.
func (c *CoinGecko) CoinID(ctx context.Context, symbol string) string {
	sym := strings.ToLower(PairBase(symbol))
	if id, ok := CoinIDs[sym]; ok {
		return id
	}

	if err := c.loadCoinList(ctx); err != nil {
		c.logger.Debug("Coin list unavailable: %v", err)
		return sym
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.listed[sym]; ok {
		return id
	}
	return sym
}

func (c *CoinGecko) loadCoinList(ctx context.Context) error {
	c.mu.Lock()
	if c.fetched {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	if err := c.get(ctx, "/coins/list", nil, &coins); err != nil {
		return err
	}

	listed := make(map[string]string, len(coins))
	for _, coin := range coins {
		sym := strings.ToLower(coin.Symbol)
		// several coins share a symbol; the first listed wins
		if _, dup := listed[sym]; !dup {
			listed[sym] = coin.ID
		}
	}

	c.mu.Lock()
	c.listed = listed
	c.fetched = true
	c.mu.Unlock()
	return nil
}

// Price returns the USD price of symbol
func (c *CoinGecko) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id := c.CoinID(ctx, symbol)
	rates, err := c.Rates(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := rates[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown coin %q", ErrUnavailable, symbol)
	}
	return price, nil
}

// Rates returns USD prices for CoinGecko IDs in one request. IDs the API
// does not know are absent from the result.
func (c *CoinGecko) Rates(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	var resp map[string]map[string]decimal.Decimal
	if err := c.get(ctx, "/simple/price", params, &resp); err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal, len(resp))
	for id, quote := range resp {
		if usd, ok := quote["usd"]; ok {
			rates[id] = usd
		}
	}
	return rates, nil
}

// Convert returns the amount of to that amount of from buys at current USD
// prices
func (c *CoinGecko) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	fromID, toID := c.CoinID(ctx, from), c.CoinID(ctx, to)
	rates, err := c.Rates(ctx, fromID, toID)
	if err != nil {
		return decimal.Zero, err
	}

	fromPrice, ok := rates[fromID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown coin %q", ErrUnavailable, from)
	}
	toPrice, ok := rates[toID]
	if !ok || toPrice.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: unknown coin %q", ErrUnavailable, to)
	}
	return amount.Mul(fromPrice).Div(toPrice), nil
}

// MarketCoin is one row of the market-cap ranking
type MarketCoin struct {
	Rank   int             `json:"market_cap_rank"`
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"current_price"`
}

// Markets returns the top n coins by market capitalization
func (c *CoinGecko) Markets(ctx context.Context, n int) ([]MarketCoin, error) {
	if n <= 0 || n > 250 {
		return nil, fmt.Errorf("count must be between 1 and 250, got %d", n)
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(n))
	params.Set("page", "1")
	params.Set("sparkline", "false")

	var coins []MarketCoin
	if err := c.get(ctx, "/coins/markets", params, &coins); err != nil {
		return nil, err
	}
	for i := range coins {
		if coins[i].Rank == 0 {
			coins[i].Rank = i + 1
		}
	}
	return coins, nil
}

func (c *CoinGecko) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	addr := c.baseURL + path
	if len(params) > 0 {
		addr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: GET %s: %s: %s", ErrUnavailable, path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	c.logger.Debug("GET %s ok", path)
	return nil
}
