package strategy

import (
	"context"
	"fmt"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/signal"
)

// formattedLevels resolves a symbol's cached precision once and
// exposes Qty/Price formatting so no strategy ever sends the exchange
// gateway an unformatted float (spec's cross-cutting "price/quantity
// formatting" rule).
type formattedLevels struct {
	precision exchange.SymbolPrecision
}

func newFormattedLevels(ctx context.Context, gw exchange.Gateway, symbol string) (*formattedLevels, error) {
	p, err := gw.GetSymbolPrecision(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("formatting: %w", err)
	}
	return &formattedLevels{precision: p}, nil
}

func (f *formattedLevels) qty(v float64) string   { return exchange.RoundQtyDown(v, f.precision.StepSize) }
func (f *formattedLevels) price(v float64) string { return exchange.RoundPriceDown(v, f.precision.TickSize) }

// sideParams maps a signal side to the entry order's Side/PositionSide
// in hedge mode.
func sideParams(side signal.Side) (exchange.Side, exchange.PositionSide) {
	if side == signal.SideLong {
		return exchange.SideBuy, exchange.PositionSideLong
	}
	return exchange.SideSell, exchange.PositionSideShort
}

func oppositeSide(side signal.Side) signal.Side {
	if side == signal.SideLong {
		return signal.SideShort
	}
	return signal.SideLong
}

// tpLevelFor computes entry_price*(1+TP_PERCENT) for LONG or
// entry_price*(1-TP_PERCENT) for SHORT.
func tpLevelFor(side signal.Side, entryPrice, tpPercent float64) float64 {
	if side == signal.SideLong {
		return entryPrice * (1 + tpPercent)
	}
	return entryPrice * (1 - tpPercent)
}

// priceOffsetFor returns the stop-trigger offset from the limit price,
// signed so the stop sits just beyond the limit in the direction that
// favors fill (spec §4.6.1 step 8: "stop-trigger offset from limit by
// PRICE_OFFSET").
func priceOffsetFor(side signal.Side, offset float64) float64 {
	if side == signal.SideLong {
		return -offset
	}
	return offset
}
