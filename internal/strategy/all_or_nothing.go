package strategy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

// AllOrNothingConfig is the subset of ALL_OR_NOTHING_CONFIG (plus the
// shared TRADING_CONFIG sizing rule) the strategy needs.
type AllOrNothingConfig struct {
	Sizing SizingConfig

	SLLookbackCandles int
	SLOffsetPercent   float64
	TPPercent         float64
	PriceOffset       float64

	DynamicRSIExitEnabled bool
	RSIThresholds         map[int]indicators.Thresholds

	TrailingStopEnabled         bool
	TrailingStopPriceTrigger    float64
	TrailingStopSLAdjustPercent float64
}

type allOrNothingSide struct {
	active            bool
	entryPrice        float64
	slRef             *exchange.OrderRef
	tpRef             *exchange.OrderRef
	trailingReference float64
}

// AllOrNothing implements spec §4.6.1: a single position per side with
// a fixed stop loss and optional take profit, optional dynamic-RSI
// exit and trailing stop. Grounded on the teacher's
// internal/risk/trailing_stop.go map-of-positions-with-mutex shape
// (trailing reference tracked per side), with the ratchet rule
// rewritten to §4.6.1's specific trigger/adjustment formula rather
// than the teacher's activation-percent/high-water-mark model.
type AllOrNothing struct {
	Common
	cfg AllOrNothingConfig

	window *CandleWindow
	long   allOrNothingSide
	short  allOrNothingSide
}

// NewAllOrNothing constructs the strategy.
func NewAllOrNothing(gw exchange.Gateway, symbol string, cfg AllOrNothingConfig) *AllOrNothing {
	return &AllOrNothing{
		Common: Common{GW: gw, Symbol: symbol, Log: logging.WithComponent("strategy.all_or_nothing")},
		cfg:    cfg,
		window: NewCandleWindow(cfg.SLLookbackCandles),
	}
}

func (a *AllOrNothing) sideState(side signal.Side) *allOrNothingSide {
	if side == signal.SideLong {
		return &a.long
	}
	return &a.short
}

func (a *AllOrNothing) CanAcceptSignal(side string) bool {
	s := a.sideState(signal.Side(side))
	return !s.active
}

func (a *AllOrNothing) HasOutstandingTP() bool {
	return a.long.tpRef != nil || a.short.tpRef != nil
}

// OnSignal implements the nine-step sequence of spec §4.6.1.
func (a *AllOrNothing) OnSignal(ctx context.Context, sig signal.Signal) error {
	s := a.sideState(sig.Side)
	if s.active {
		return nil // step 1: reject same-side active
	}

	fmtLevels, err := newFormattedLevels(ctx, a.GW, a.Symbol)
	if err != nil {
		return fmt.Errorf("all_or_nothing: %w", err)
	}

	orderSide, posSide := sideParams(sig.Side)

	prelimLevel := a.protectiveLevel(sig.Side, a.cfg.SLLookbackCandles)
	qty, err := ComputeQuantity(ctx, a.GW, a.Symbol, a.cfg.Sizing, a.window.LastClose(), prelimLevel)
	if err != nil {
		return fmt.Errorf("all_or_nothing: sizing: %w", err)
	}
	qtyStr := fmtLevels.qty(qty)

	entryRef, err := a.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: a.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: qtyStr,
	})
	if err != nil {
		return fmt.Errorf("all_or_nothing: entry placement failed: %w", err)
	}

	fillPrice := entryRef.AvgPrice
	if ref, err := a.GW.GetOrderStatus(ctx, a.Symbol, entryRef.OrderID); err == nil {
		fillPrice = ref.AvgPrice
	}

	slLevel := a.protectiveLevel(sig.Side, a.cfg.SLLookbackCandles)

	// Step 6: mark active immediately, before SL/TP placement.
	s.active = true
	s.entryPrice = fillPrice
	s.trailingReference = fillPrice

	slOrderSide, _ := sideParams(oppositeSide(sig.Side))
	slRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return a.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: a.Symbol, Side: slOrderSide, PositionSide: posSide,
			Kind: exchange.OrderKindStopMarket, Qty: qtyStr, StopPrice: fmtLevels.price(slLevel), ReduceOnly: true,
		})
	})
	if err != nil {
		a.resetSide(s)
		return fmt.Errorf("all_or_nothing: protective SL placement fatal: %w", err)
	}
	s.slRef = slRef

	if !a.cfg.DynamicRSIExitEnabled {
		tpLevel := tpLevelFor(sig.Side, fillPrice, a.cfg.TPPercent)
		tpStop := tpLevel + priceOffsetFor(sig.Side, a.cfg.PriceOffset)
		tpRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
			return a.GW.PlaceOrder(ctx, exchange.PlaceParams{
				Symbol: a.Symbol, Side: slOrderSide, PositionSide: posSide,
				Kind: exchange.OrderKindTakeProfit, Qty: qtyStr, Price: fmtLevels.price(tpLevel),
				StopPrice: fmtLevels.price(tpStop), ReduceOnly: true,
			})
		})
		if err != nil {
			_ = a.GW.CancelOrder(ctx, a.Symbol, s.slRef.OrderID)
			a.resetSide(s)
			return fmt.Errorf("all_or_nothing: protective TP placement fatal: %w", err)
		}
		s.tpRef = tpRef
	}

	return nil
}

func (a *AllOrNothing) OnClosedCandle(ctx context.Context, cctx ClosedCandleContext) error {
	a.window.Push(cctx.Candle)

	for _, side := range []signal.Side{signal.SideLong, signal.SideShort} {
		s := a.sideState(side)
		if !s.active {
			continue
		}

		if a.cfg.DynamicRSIExitEnabled && a.oppositeExtremeConfirmed(side, cctx.RSI) {
			a.exitOnDynamicRSI(ctx, side, s)
			continue
		}

		if a.cfg.TrailingStopEnabled {
			a.applyTrailingStop(ctx, side, s, cctx.Candle.Close)
		}
	}
	return nil
}

func (a *AllOrNothing) exitOnDynamicRSI(ctx context.Context, side signal.Side, s *allOrNothingSide) {
	orderSide, posSide := sideParams(oppositeSide(side))
	_, _ = a.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: a.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: qtyOf(s), ReduceOnly: true,
	})
	a.cancelSidePair(ctx, s)
	a.resetSide(s)
}

func (a *AllOrNothing) applyTrailingStop(ctx context.Context, side signal.Side, s *allOrNothingSide, close float64) {
	if s.slRef == nil {
		return
	}
	favorable := (side == signal.SideLong && close >= s.trailingReference*(1+a.cfg.TrailingStopPriceTrigger)) ||
		(side == signal.SideShort && close <= s.trailingReference*(1-a.cfg.TrailingStopPriceTrigger))
	if !favorable {
		return
	}

	currentSL := parseFloatOrZero(s.slRef.StopPrice)
	var newSL float64
	if side == signal.SideLong {
		newSL = currentSL * (1 + a.cfg.TrailingStopSLAdjustPercent)
	} else {
		newSL = currentSL * (1 - a.cfg.TrailingStopSLAdjustPercent)
	}

	fmtLevels, err := newFormattedLevels(ctx, a.GW, a.Symbol)
	if err != nil {
		a.Log.Warn("trailing stop replacement skipped for %s: %v", side, err)
		return
	}

	orderSide, posSide := sideParams(oppositeSide(side))
	oldID := s.slRef.OrderID
	newRef, err := a.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: a.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindStopMarket, Qty: s.slRef.Qty, StopPrice: fmtLevels.price(newSL), ReduceOnly: true,
	})
	if err != nil {
		a.Log.Warn("trailing stop replacement failed for %s: %v", side, err)
		return
	}
	_ = a.GW.CancelOrder(ctx, a.Symbol, oldID)
	s.slRef = newRef
	s.trailingReference = close
}

func (a *AllOrNothing) oppositeExtremeConfirmed(side signal.Side, rsi map[int]indicators.RSIValue) bool {
	if len(rsi) == 0 {
		return false
	}
	wantOverbought := side == signal.SideLong
	for period, v := range rsi {
		t, ok := a.cfg.RSIThresholds[period]
		if !ok {
			return false
		}
		if wantOverbought && !v.IsOverbought(t) {
			return false
		}
		if !wantOverbought && !v.IsOversold(t) {
			return false
		}
	}
	return true
}

func (a *AllOrNothing) OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error {
	if upd.Status != exchange.OrderStatusFilled {
		return nil
	}
	for _, side := range []signal.Side{signal.SideLong, signal.SideShort} {
		s := a.sideState(side)
		if (s.slRef != nil && s.slRef.OrderID == upd.OrderID) || (s.tpRef != nil && s.tpRef.OrderID == upd.OrderID) {
			a.cancelSidePair(ctx, s)
			a.resetSide(s)
			return nil
		}
	}
	return nil
}

func (a *AllOrNothing) cancelSidePair(ctx context.Context, s *allOrNothingSide) {
	if s.slRef != nil {
		_ = a.GW.CancelOrder(ctx, a.Symbol, s.slRef.OrderID)
	}
	if s.tpRef != nil {
		_ = a.GW.CancelOrder(ctx, a.Symbol, s.tpRef.OrderID)
	}
}

func (a *AllOrNothing) resetSide(s *allOrNothingSide) {
	*s = allOrNothingSide{}
}

func (a *AllOrNothing) protectiveLevel(side signal.Side, n int) float64 {
	if side == signal.SideLong {
		return a.window.MinLow(n) * (1 - a.cfg.SLOffsetPercent)
	}
	return a.window.MaxHigh(n) * (1 + a.cfg.SLOffsetPercent)
}

func (a *AllOrNothing) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"long_active":  a.long.active,
		"short_active": a.short.active,
	}
}

func (a *AllOrNothing) Shutdown(ctx context.Context) {}

func qtyOf(s *allOrNothingSide) string {
	if s.slRef != nil {
		return s.slRef.Qty
	}
	return "0"
}

func parseFloatOrZero(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
