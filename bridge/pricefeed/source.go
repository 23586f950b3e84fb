// Package pricefeed provides market prices for trade planning. Nothing in
// the logging pipeline depends on it.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no price is known for a symbol
var ErrUnavailable = errors.New("price unavailable")

// Source quotes a symbol in USD
type Source interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PairBase returns the base asset of a trading pair, "BTC/USDT" -> "BTC"
func PairBase(pair string) string {
	pair = strings.TrimSpace(pair)
	if i := strings.IndexAny(pair, "/-"); i >= 0 {
		return pair[:i]
	}
	return pair
}

// Chain asks each source in order and returns the first price found
type Chain []Source

// Price implements Source
func (c Chain) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var errs []error
	for _, src := range c {
		if src == nil {
			continue
		}
		price, err := src.Price(ctx, symbol)
		if err == nil {
			return price, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no sources for %s", ErrUnavailable, symbol)
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, symbol, errors.Join(errs...))
}
