package strategy

import "github.com/shopspring/decimal"

// SignalKind is a coarse price-band recommendation
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalHold SignalKind = "HOLD"
	SignalSell SignalKind = "SELL"
)

var (
	buyBelow  = decimal.NewFromInt(1000)
	holdBelow = decimal.NewFromInt(5000)
)

// Signal maps a USD price onto BUY (0, 1000), HOLD [1000, 5000) or SELL
func Signal(price decimal.Decimal) SignalKind {
	switch {
	case price.Sign() > 0 && price.LessThan(buyBelow):
		return SignalBuy
	case price.GreaterThanOrEqual(buyBelow) && price.LessThan(holdBelow):
		return SignalHold
	default:
		return SignalSell
	}
}
