package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Decision is the trade direction
type Decision string

const (
	Long  Decision = "LONG"
	Short Decision = "SHORT"
)

var (
	stopLossFactor   = decimal.RequireFromString("0.98")
	takeProfitFactor = decimal.RequireFromString("1.05")
)

// TradeOptions replaces interactive prompting. Zero values keep the
// provider's suggestion.
type TradeOptions struct {
	Confirm   bool            `json:"confirm" yaml:"confirm"`
	Leverage  int             `json:"leverage" yaml:"leverage"`
	OrderType string          `json:"orderType" yaml:"order_type"`
	TradeSize decimal.Decimal `json:"tradeSize" yaml:"trade_size"`
}

// TradePlan is a suggestion with the caller's overrides applied
type TradePlan struct {
	Suggestion *Suggestion     `json:"suggestion"`
	Decision   Decision        `json:"decision"`
	Leverage   int             `json:"leverage"`
	OrderType  string          `json:"orderType"`
	TradeSize  decimal.Decimal `json:"tradeSize"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TakeProfit decimal.Decimal `json:"takeProfit"`
}

// Plan asks provider for a suggestion on pair and derives a trade from it.
// The trade is LONG when the predicted price is above the real-time price
// and SHORT otherwise; without a real-time price it is LONG.
func Plan(ctx context.Context, provider PredictionProvider, pair string, opts TradeOptions) (*TradePlan, error) {
	if provider == nil {
		return nil, fmt.Errorf("no prediction provider configured")
	}

	s, err := provider.Suggest(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("suggestion for %s failed: %w", pair, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid suggestion for %s: %w", pair, err)
	}

	plan := &TradePlan{
		Suggestion: s,
		Decision:   Short,
		Leverage:   s.Leverage,
		OrderType:  s.OrderType,
		TradeSize:  s.TradeSize,
		StopLoss:   s.PredictedPrice.Mul(stopLossFactor).Round(2),
		TakeProfit: s.PredictedPrice.Mul(takeProfitFactor).Round(2),
	}
	if !s.PriceAvailable || s.PredictedPrice.GreaterThan(s.RealTimePrice) {
		plan.Decision = Long
	}

	if opts.Leverage != 0 {
		if opts.Leverage < 1 {
			return nil, fmt.Errorf("leverage must be positive, got %d", opts.Leverage)
		}
		plan.Leverage = opts.Leverage
	}
	if opts.OrderType != "" {
		plan.OrderType = strings.ToLower(opts.OrderType)
	}
	if !opts.TradeSize.IsZero() {
		if opts.TradeSize.Sign() < 0 {
			return nil, fmt.Errorf("trade size cannot be negative, got %s", opts.TradeSize)
		}
		plan.TradeSize = opts.TradeSize
	}
	if plan.OrderType == "" {
		plan.OrderType = OrderMarket
	}

	return plan, nil
}

// Action renders the plan as the text recorded on-chain
func (p *TradePlan) Action() string {
	return fmt.Sprintf("Trade: %s, Leverage: %d, Order: %s, Size: %s, SL: %s, TP: %s",
		p.Decision, p.Leverage, p.OrderType, p.TradeSize.StringFixed(2), p.StopLoss.StringFixed(2), p.TakeProfit.StringFixed(2))
}

// Headline is a one-line human summary of the plan
func (p *TradePlan) Headline() string {
	return fmt.Sprintf("AI executed a %s trade with %dx leverage on %s", p.Decision, p.Leverage, p.Suggestion.Pair)
}
