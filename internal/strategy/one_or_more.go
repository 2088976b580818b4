package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

// OneOrMoreConfig is the subset of ONE_OR_MORE_CONFIG the strategy
// needs. RRRatio and AsymmetricTP are read from configuration but left
// unused: §4.6.4's body text specifies only the symmetric 1:R payout;
// no formula is given for an asymmetric or ratio-scaled variant.
type OneOrMoreConfig struct {
	Sizing                     SizingConfig
	SLLookbackCandles          int
	SLOffsetPercent            float64
	HedgeQuantityMultiplier    float64
	TPSafetyOffsetPercent      float64
	MinDistancePercent         float64
	SmallDistanceOffsetPercent float64
}

type oneOrMoreSide struct {
	active      bool
	signalPrice float64
	hedgePrice  float64
	distance    float64
	hedgeRef    *exchange.OrderRef
	tpSignalRef *exchange.OrderRef
	tpHedgeRef  *exchange.OrderRef
}

// OneOrMore implements spec §4.6.4: a single-cycle hedged play with a
// 1:R symmetrical payout. Cross-stop orders (contemplated but optional
// in §4.6.4) are not implemented -- the spec gives the cross-stop no
// concrete trigger formula beyond "guarantees realized R regardless of
// which leg fills first," and the teardown-on-either-TP-fill path
// already guarantees the realized R without them.
type OneOrMore struct {
	Common
	cfg    OneOrMoreConfig
	window *CandleWindow
	long   oneOrMoreSide
	short  oneOrMoreSide
}

// NewOneOrMore constructs the strategy.
func NewOneOrMore(gw exchange.Gateway, symbol string, cfg OneOrMoreConfig) *OneOrMore {
	return &OneOrMore{
		Common: Common{GW: gw, Symbol: symbol, Log: logging.WithComponent("strategy.one_or_more")},
		cfg:    cfg,
		window: NewCandleWindow(cfg.SLLookbackCandles),
	}
}

func (o *OneOrMore) sideState(side signal.Side) *oneOrMoreSide {
	if side == signal.SideLong {
		return &o.long
	}
	return &o.short
}

// CanAcceptSignal exposes only one cycle at a time across both sides.
func (o *OneOrMore) CanAcceptSignal(side string) bool {
	return !o.long.active && !o.short.active
}

func (o *OneOrMore) HasOutstandingTP() bool {
	return o.long.tpSignalRef != nil || o.long.tpHedgeRef != nil || o.short.tpSignalRef != nil || o.short.tpHedgeRef != nil
}

func (o *OneOrMore) hedgeLevel(side signal.Side) float64 {
	if side == signal.SideLong {
		return o.window.MinLow(o.cfg.SLLookbackCandles) * (1 - o.cfg.SLOffsetPercent)
	}
	return o.window.MaxHigh(o.cfg.SLLookbackCandles) * (1 + o.cfg.SLOffsetPercent)
}

// OnSignal implements the §4.6.4 on-signal sequence.
func (o *OneOrMore) OnSignal(ctx context.Context, sig signal.Signal) error {
	if o.long.active || o.short.active {
		return nil
	}
	s := o.sideState(sig.Side)

	fmtLevels, err := newFormattedLevels(ctx, o.GW, o.Symbol)
	if err != nil {
		return fmt.Errorf("one_or_more: %w", err)
	}

	prelimHedge := o.hedgeLevel(sig.Side)
	qty, err := ComputeQuantity(ctx, o.GW, o.Symbol, o.cfg.Sizing, o.window.LastClose(), prelimHedge)
	if err != nil {
		return fmt.Errorf("one_or_more: sizing: %w", err)
	}
	qtyStr := fmtLevels.qty(qty)

	orderSide, posSide := sideParams(sig.Side)
	entryRef, err := o.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: o.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: qtyStr,
	})
	if err != nil {
		return fmt.Errorf("one_or_more: entry placement failed: %w", err)
	}

	signalPrice := entryRef.AvgPrice
	if ref, err := o.GW.GetOrderStatus(ctx, o.Symbol, entryRef.OrderID); err == nil {
		signalPrice = ref.AvgPrice
	}

	hedgeQtyStr := fmtLevels.qty(qty * o.cfg.HedgeQuantityMultiplier)
	hedgeOrderSide, hedgePosSide := sideParams(oppositeSide(sig.Side))
	hedgeRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return o.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: o.Symbol, Side: hedgeOrderSide, PositionSide: hedgePosSide,
			Kind: exchange.OrderKindStopMarket, Qty: hedgeQtyStr, StopPrice: fmtLevels.price(prelimHedge),
		})
	})
	if err != nil {
		return fmt.Errorf("one_or_more: hedge placement fatal: %w", err)
	}

	distance := o.adjustedDistance(signalPrice, math.Abs(signalPrice-prelimHedge))

	// Mark active once the hedge is live, mirroring ALL_OR_NOTHING's
	// "mark active before exit orders" ordering.
	s.active = true
	s.signalPrice = signalPrice
	s.hedgePrice = prelimHedge
	s.distance = distance
	s.hedgeRef = hedgeRef

	tpLevel := signalPrice + signedDistance(sig.Side, distance)
	tpStop := tpLevel + priceOffsetFor(sig.Side, 0)
	tpOrderSide, _ := sideParams(oppositeSide(sig.Side))
	tpRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return o.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: o.Symbol, Side: tpOrderSide, PositionSide: posSide,
			Kind: exchange.OrderKindTakeProfit, Qty: qtyStr, Price: fmtLevels.price(tpLevel),
			StopPrice: fmtLevels.price(tpStop), ReduceOnly: true,
		})
	})
	if err != nil {
		_ = o.GW.CancelOrder(ctx, o.Symbol, s.hedgeRef.OrderID)
		*s = oneOrMoreSide{}
		return fmt.Errorf("one_or_more: signal TP placement fatal: %w", err)
	}
	s.tpSignalRef = tpRef

	return nil
}

// adjustedDistance applies the safety offset and, when the raw
// distance is too small, the small-distance offset, both scaled
// relative to the signal price (§4.6.4 step 5).
func (o *OneOrMore) adjustedDistance(signalPrice, rawDistance float64) float64 {
	distance := rawDistance + o.cfg.TPSafetyOffsetPercent*signalPrice
	if rawDistance < o.cfg.MinDistancePercent*signalPrice {
		distance += o.cfg.SmallDistanceOffsetPercent * signalPrice
	}
	return distance
}

func signedDistance(side signal.Side, distance float64) float64 {
	if side == signal.SideLong {
		return distance
	}
	return -distance
}

func (o *OneOrMore) OnClosedCandle(ctx context.Context, cctx ClosedCandleContext) error {
	o.window.Push(cctx.Candle)
	return nil
}

func (o *OneOrMore) OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error {
	if upd.Status != exchange.OrderStatusFilled {
		return nil
	}

	for _, side := range []signal.Side{signal.SideLong, signal.SideShort} {
		s := o.sideState(side)
		if !s.active {
			continue
		}
		if s.hedgeRef != nil && s.hedgeRef.OrderID == upd.OrderID {
			return o.handleHedgeFill(ctx, side, s)
		}
		if (s.tpSignalRef != nil && s.tpSignalRef.OrderID == upd.OrderID) ||
			(s.tpHedgeRef != nil && s.tpHedgeRef.OrderID == upd.OrderID) {
			o.teardown(ctx, side, s)
			return nil
		}
	}
	return nil
}

// handleHedgeFill places the hedge leg's own TP at hedge_price +
// opposite_sign*distance, sized q*multiplier.
func (o *OneOrMore) handleHedgeFill(ctx context.Context, side signal.Side, s *oneOrMoreSide) error {
	fmtLevels, err := newFormattedLevels(ctx, o.GW, o.Symbol)
	if err != nil {
		return fmt.Errorf("one_or_more: %w", err)
	}

	hedgeSide := oppositeSide(side)
	tpLevel := s.hedgePrice + signedDistance(hedgeSide, s.distance)
	tpStop := tpLevel + priceOffsetFor(hedgeSide, 0)
	hedgeQtyStr := s.hedgeRef.Qty

	tpOrderSide, _ := sideParams(side)
	_, hedgePosSide := sideParams(hedgeSide)
	tpRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return o.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: o.Symbol, Side: tpOrderSide, PositionSide: hedgePosSide,
			Kind: exchange.OrderKindTakeProfit, Qty: hedgeQtyStr, Price: fmtLevels.price(tpLevel),
			StopPrice: fmtLevels.price(tpStop), ReduceOnly: true,
		})
	})
	if err != nil {
		return fmt.Errorf("one_or_more: hedge TP placement fatal: %w", err)
	}
	s.tpHedgeRef = tpRef
	return nil
}

// teardown implements the full-teardown rule: cancel every outstanding
// order in the cycle, MARKET-flatten every non-zero position, clear
// state.
func (o *OneOrMore) teardown(ctx context.Context, side signal.Side, s *oneOrMoreSide) {
	if s.hedgeRef != nil {
		_ = o.GW.CancelOrder(ctx, o.Symbol, s.hedgeRef.OrderID)
	}
	if s.tpSignalRef != nil {
		_ = o.GW.CancelOrder(ctx, o.Symbol, s.tpSignalRef.OrderID)
	}
	if s.tpHedgeRef != nil {
		_ = o.GW.CancelOrder(ctx, o.Symbol, s.tpHedgeRef.OrderID)
	}

	o.flatten(ctx, side)
	o.flatten(ctx, oppositeSide(side))
	*s = oneOrMoreSide{}
}

func (o *OneOrMore) flatten(ctx context.Context, side signal.Side) {
	_, posSide := sideParams(side)
	pos, err := o.GW.GetPosition(ctx, o.Symbol, posSide)
	if err != nil || pos.PositionAmt == 0 {
		return
	}
	fmtLevels, err := newFormattedLevels(ctx, o.GW, o.Symbol)
	if err != nil {
		return
	}
	closeSide, _ := sideParams(oppositeSide(side))
	_, _ = o.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: o.Symbol, Side: closeSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: fmtLevels.qty(abs(pos.PositionAmt)), ReduceOnly: true,
	})
}

func (o *OneOrMore) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"long_active":  o.long.active,
		"short_active": o.short.active,
	}
}

func (o *OneOrMore) Shutdown(ctx context.Context) {}
