// Package strategy turns price predictions into trade plans whose action
// text is logged on-chain. Providers are interchangeable; the logging
// pipeline never depends on how a suggestion was produced.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opendlt/actionlog/bridge/pricefeed"
	"github.com/opendlt/actionlog/internal/logz"
)

// Risk levels reported by providers
const (
	RiskLow  = "Low"
	RiskHigh = "High"
)

// OrderMarket is the only order type providers currently suggest
const OrderMarket = "market"

// Suggestion is a provider's view of one trading pair
type Suggestion struct {
	Pair string `json:"pair"`
	// RealTimePrice is zero when PriceAvailable is false
	RealTimePrice  decimal.Decimal `json:"realTimePrice"`
	PriceAvailable bool            `json:"priceAvailable"`
	PredictedPrice decimal.Decimal `json:"predictedPrice"`
	Leverage       int             `json:"leverage"`
	OrderType      string          `json:"orderType"`
	TradeSize      decimal.Decimal `json:"tradeSize"`
	RiskLevel      string          `json:"riskLevel"`
}

// PredictionProvider suggests a trade for a pair such as "BTC/USDT"
type PredictionProvider interface {
	Suggest(ctx context.Context, pair string) (*Suggestion, error)
}

// RandomProvider produces mock suggestions around no real model. Predicted
// prices fall in [30000, 60000), leverage in 1..10 and trade size in
// [0, 500).
type RandomProvider struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices pricefeed.Source
	logger *logz.Logger
}

var _ PredictionProvider = (*RandomProvider)(nil)

// NewRandomProvider creates a mock provider. prices may be nil, in which case
// the real-time price is always reported unavailable.
func NewRandomProvider(rng *rand.Rand, prices pricefeed.Source) *RandomProvider {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RandomProvider{
		rng:    rng,
		prices: prices,
		logger: logz.New(logz.INFO, "strategy"),
	}
}

// Suggest implements PredictionProvider
func (p *RandomProvider) Suggest(ctx context.Context, pair string) (*Suggestion, error) {
	if pair == "" {
		return nil, errors.New("pair cannot be empty")
	}

	s := &Suggestion{Pair: pair, OrderType: OrderMarket}
	fillRealTimePrice(ctx, p.prices, p.logger, s)

	p.mu.Lock()
	predicted := 30000 + p.rng.Float64()*30000
	s.Leverage = p.rng.Intn(10) + 1
	size := p.rng.Float64() * 500
	high := p.rng.Intn(2) == 1
	p.mu.Unlock()

	s.PredictedPrice = decimal.NewFromFloat(predicted).Round(2)
	s.TradeSize = decimal.NewFromFloat(size).Round(2)
	s.RiskLevel = RiskLow
	if high {
		s.RiskLevel = RiskHigh
	}
	return s, nil
}

// fillRealTimePrice sets the live price of the pair's base asset if a source
// can provide it
func fillRealTimePrice(ctx context.Context, prices pricefeed.Source, logger *logz.Logger, s *Suggestion) {
	if prices == nil {
		return
	}
	price, err := prices.Price(ctx, s.Pair)
	if err != nil {
		logger.Debug("Real-time price for %s unavailable: %v", s.Pair, err)
		return
	}
	s.RealTimePrice = price
	s.PriceAvailable = true
}

// validate checks a provider's output before it is planned on
func (s *Suggestion) validate() error {
	if s.PredictedPrice.Sign() <= 0 {
		return fmt.Errorf("predicted price must be positive, got %s", s.PredictedPrice)
	}
	if s.Leverage < 1 || s.Leverage > 125 {
		return fmt.Errorf("leverage %d out of range", s.Leverage)
	}
	if s.TradeSize.Sign() < 0 {
		return fmt.Errorf("trade size cannot be negative, got %s", s.TradeSize)
	}
	return nil
}
