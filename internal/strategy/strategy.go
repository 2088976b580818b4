// Package strategy hosts the runtime's single active strategy and the
// four concrete implementations named in spec §4.6. Grounded on the
// teacher's internal/strategy/strategy.go config-struct-with-
// constructor-defaults pattern and interface shape, generalized from a
// candlestick-pattern strategy set to the four position-management
// strategies this spec names.
package strategy

import (
	"context"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

// ClosedCandleContext is what a strategy needs on every closed candle:
// the candle itself, the HA color, and the RSI snapshot already
// computed by the caller (the runtime owns the indicator pipeline so
// strategies never recompute it).
type ClosedCandleContext struct {
	Candle  indicators.Candle
	HAColor indicators.Color
	RSI     map[int]indicators.RSIValue
}

// Strategy is the common interface every variant implements. shutdown
// must not cancel exchange-side protective orders (spec §4.6: "an
// operator restart must not unwind positions").
type Strategy interface {
	OnSignal(ctx context.Context, sig signal.Signal) error
	OnClosedCandle(ctx context.Context, cctx ClosedCandleContext) error
	OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error
	CanAcceptSignal(side string) bool
	HasOutstandingTP() bool
	Snapshot() map[string]interface{}
	Shutdown(ctx context.Context)
}

// Common is embedded by every strategy for its gateway reference and
// logger. Strategies hold a non-owning reference to the gateway,
// constructed after both exist (spec §9's cycles/weak-reference note).
type Common struct {
	GW     exchange.Gateway
	Symbol string
	Log    *logging.Logger
}
