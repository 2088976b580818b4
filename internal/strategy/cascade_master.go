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

// CascadeMasterConfig is the subset of HEDGING_CONFIG/CASCADE_CONFIG/
// TP_CONFIG the strategy needs.
type CascadeMasterConfig struct {
	Sizing                  SizingConfig
	HedgeLookbackCandles    int
	HedgeQuantityMultiplier float64
	MaxOrders               int
	BaseMultiplier          float64
	PositionIncrement       float64
	PriceOffset             float64
}

type cascadeState string

const (
	cascadeInactive     cascadeState = "INACTIVE"
	cascadeWaitingHedge cascadeState = "WAITING_HEDGE"
	cascadeActive       cascadeState = "ACTIVE"
	cascadeStopped      cascadeState = "STOPPED"
)

// CascadeMaster implements spec §4.6.3: a hedged, self-propagating
// alternating ladder. Unlike the other three strategies this is a
// single process-level state machine, not a per-side pair -- grounded
// on the teacher's internal/autopilot/hedging.go mutex-protected
// single-state shape (read for structural style only; its AI-driven
// trigger has no analog here, the alternation rule below is fully
// specified by §4.6.3).
type CascadeMaster struct {
	Common
	cfg    CascadeMasterConfig
	window *CandleWindow

	state     cascadeState
	entrySide signal.Side

	initialLongPrice, initialShortPrice float64
	currentLongQty, currentShortQty     float64
	cascadeOrdersCount                  int
	k                                   int

	hedgeRef     *exchange.OrderRef
	pendingChild *exchange.OrderRef
	tpLong       *exchange.OrderRef
	tpShort      *exchange.OrderRef
}

// NewCascadeMaster constructs the strategy.
func NewCascadeMaster(gw exchange.Gateway, symbol string, cfg CascadeMasterConfig) *CascadeMaster {
	return &CascadeMaster{
		Common: Common{GW: gw, Symbol: symbol, Log: logging.WithComponent("strategy.cascade_master")},
		cfg:    cfg,
		window: NewCandleWindow(cfg.HedgeLookbackCandles),
		state:  cascadeInactive,
	}
}

func (c *CascadeMaster) CanAcceptSignal(side string) bool {
	return c.state == cascadeInactive
}

func (c *CascadeMaster) HasOutstandingTP() bool {
	return c.tpLong != nil || c.tpShort != nil
}

func (c *CascadeMaster) hedgeProtectiveLevel(side signal.Side) float64 {
	if side == signal.SideLong {
		return c.window.MinLow(c.cfg.HedgeLookbackCandles)
	}
	return c.window.MaxHigh(c.cfg.HedgeLookbackCandles)
}

// OnSignal implements the §4.6.3 startup sequence: a MARKET entry of
// size q0 followed by a hedge STOP_MARKET on the opposite
// position_side, sized q0*QUANTITY_MULTIPLIER.
func (c *CascadeMaster) OnSignal(ctx context.Context, sig signal.Signal) error {
	if c.state != cascadeInactive {
		return nil
	}

	fmtLevels, err := newFormattedLevels(ctx, c.GW, c.Symbol)
	if err != nil {
		return fmt.Errorf("cascade_master: %w", err)
	}

	hedgeLevel := c.hedgeProtectiveLevel(sig.Side)
	qty0, err := ComputeQuantity(ctx, c.GW, c.Symbol, c.cfg.Sizing, c.window.LastClose(), hedgeLevel)
	if err != nil {
		return fmt.Errorf("cascade_master: sizing: %w", err)
	}
	qty0Str := fmtLevels.qty(qty0)

	orderSide, posSide := sideParams(sig.Side)
	entryRef, err := c.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: c.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: qty0Str,
	})
	if err != nil {
		return fmt.Errorf("cascade_master: entry placement failed: %w", err)
	}

	fillPrice := entryRef.AvgPrice
	if ref, err := c.GW.GetOrderStatus(ctx, c.Symbol, entryRef.OrderID); err == nil {
		fillPrice = ref.AvgPrice
	}

	c.entrySide = sig.Side
	if sig.Side == signal.SideLong {
		c.initialLongPrice = fillPrice
		c.currentLongQty = qty0
	} else {
		c.initialShortPrice = fillPrice
		c.currentShortQty = qty0
	}

	hedgeOrderSide, hedgePosSide := sideParams(oppositeSide(sig.Side))
	hedgeQtyStr := fmtLevels.qty(qty0 * c.cfg.HedgeQuantityMultiplier)
	hedgeRef, err := exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return c.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: c.Symbol, Side: hedgeOrderSide, PositionSide: hedgePosSide,
			Kind: exchange.OrderKindStopMarket, Qty: hedgeQtyStr, StopPrice: fmtLevels.price(hedgeLevel),
		})
	})
	if err != nil {
		c.reset()
		return fmt.Errorf("cascade_master: hedge placement fatal: %w", err)
	}

	c.hedgeRef = hedgeRef
	c.state = cascadeWaitingHedge
	return nil
}

func (c *CascadeMaster) OnClosedCandle(ctx context.Context, cctx ClosedCandleContext) error {
	c.window.Push(cctx.Candle)
	return nil
}

func (c *CascadeMaster) OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error {
	if upd.Status != exchange.OrderStatusFilled {
		return nil
	}

	switch c.state {
	case cascadeWaitingHedge:
		if c.hedgeRef != nil && c.hedgeRef.OrderID == upd.OrderID {
			return c.handleHedgeFill(ctx, upd)
		}
	case cascadeActive:
		if c.pendingChild != nil && c.pendingChild.OrderID == upd.OrderID {
			return c.handleCascadeChildFill(ctx, upd)
		}
		if c.tpFilled(upd.OrderID) {
			c.teardown(ctx)
		}
	case cascadeStopped:
		if c.tpFilled(upd.OrderID) {
			c.teardown(ctx)
		}
	}
	return nil
}

func (c *CascadeMaster) tpFilled(orderID int64) bool {
	return (c.tpLong != nil && c.tpLong.OrderID == orderID) || (c.tpShort != nil && c.tpShort.OrderID == orderID)
}

func (c *CascadeMaster) handleHedgeFill(ctx context.Context, upd userdata.OrderUpdate) error {
	hedgeSide := oppositeSide(c.entrySide)
	if hedgeSide == signal.SideLong {
		c.initialLongPrice = upd.AvgPrice
		c.currentLongQty += upd.ExecutedQty
	} else {
		c.initialShortPrice = upd.AvgPrice
		c.currentShortQty += upd.ExecutedQty
	}

	c.k = 1
	c.state = cascadeActive
	if err := c.refreshTPs(ctx); err != nil {
		return err
	}
	return c.createNextChild(ctx)
}

func (c *CascadeMaster) handleCascadeChildFill(ctx context.Context, upd userdata.OrderUpdate) error {
	side := signal.Side(upd.PositionSide)
	if side == signal.SideLong {
		c.currentLongQty += upd.ExecutedQty
	} else {
		c.currentShortQty += upd.ExecutedQty
	}

	c.cascadeOrdersCount++
	c.k++
	if err := c.refreshTPs(ctx); err != nil {
		return err
	}

	if c.cascadeOrdersCount < c.cfg.MaxOrders {
		return c.createNextChild(ctx)
	}

	c.state = cascadeStopped
	c.pendingChild = nil
	return nil
}

// refreshTPs implements the §4.6.3 TP level rule: tp_long = p_ref_long
// + k*d, tp_short = p_ref_short - k*d, where d is the base spread
// scaled by BASE_MULTIPLIER and compounded by POSITION_INCREMENT per
// position count -- the "per-position increment factor ... applied
// multiplicatively" of §4.6.3.
func (c *CascadeMaster) refreshTPs(ctx context.Context) error {
	fmtLevels, err := newFormattedLevels(ctx, c.GW, c.Symbol)
	if err != nil {
		return fmt.Errorf("cascade_master: %w", err)
	}

	baseD := math.Abs(c.initialLongPrice-c.initialShortPrice) * c.cfg.BaseMultiplier
	d := baseD * math.Pow(1+c.cfg.PositionIncrement, float64(c.k-1))

	tpLongLevel := c.initialLongPrice + float64(c.k)*d
	tpShortLevel := c.initialShortPrice - float64(c.k)*d

	newLong, err := c.placeTP(ctx, fmtLevels, signal.SideLong, tpLongLevel, c.currentLongQty)
	if err != nil {
		return fmt.Errorf("cascade_master: long TP refresh fatal: %w", err)
	}
	oldLong := c.tpLong
	c.tpLong = newLong
	if oldLong != nil {
		_ = c.GW.CancelOrder(ctx, c.Symbol, oldLong.OrderID)
	}

	newShort, err := c.placeTP(ctx, fmtLevels, signal.SideShort, tpShortLevel, c.currentShortQty)
	if err != nil {
		return fmt.Errorf("cascade_master: short TP refresh fatal: %w", err)
	}
	oldShort := c.tpShort
	c.tpShort = newShort
	if oldShort != nil {
		_ = c.GW.CancelOrder(ctx, c.Symbol, oldShort.OrderID)
	}

	return nil
}

func (c *CascadeMaster) placeTP(ctx context.Context, fmtLevels *formattedLevels, side signal.Side, level, qty float64) (*exchange.OrderRef, error) {
	orderSide, _ := sideParams(oppositeSide(side))
	_, truePosSide := sideParams(side)
	tpStop := level + priceOffsetFor(side, c.cfg.PriceOffset)
	return exchange.PlaceProtectiveOrder(ctx, exchange.DefaultProtectiveRetry, func(ctx context.Context) (*exchange.OrderRef, error) {
		return c.GW.PlaceOrder(ctx, exchange.PlaceParams{
			Symbol: c.Symbol, Side: orderSide, PositionSide: truePosSide,
			Kind: exchange.OrderKindTakeProfit, Qty: fmtLevels.qty(qty), Price: fmtLevels.price(level),
			StopPrice: fmtLevels.price(tpStop), ReduceOnly: true,
		})
	})
}

// createNextChild implements the alternation rule: the side with the
// larger cumulative exposure gets a rebalancing child on the opposite
// side, sized 2*larger-smaller, at that side's initial reference
// price.
func (c *CascadeMaster) createNextChild(ctx context.Context) error {
	fmtLevels, err := newFormattedLevels(ctx, c.GW, c.Symbol)
	if err != nil {
		return fmt.Errorf("cascade_master: %w", err)
	}

	var side signal.Side
	var qty, refPrice float64
	if c.currentLongQty > c.currentShortQty {
		side = signal.SideShort
		qty = 2*c.currentLongQty - c.currentShortQty
		refPrice = c.initialShortPrice
	} else {
		side = signal.SideLong
		qty = 2*c.currentShortQty - c.currentLongQty
		refPrice = c.initialLongPrice
	}

	orderSide, posSide := sideParams(side)
	childRef, err := c.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: c.Symbol, Side: orderSide, PositionSide: posSide,
		Kind: exchange.OrderKindStopMarket, Qty: fmtLevels.qty(qty), StopPrice: fmtLevels.price(refPrice),
	})
	if err != nil {
		return fmt.Errorf("cascade_master: cascade child placement fatal: %w", err)
	}
	c.pendingChild = childRef
	return nil
}

// teardown implements §4.6.3's TP execution: cancel every live cascade
// child and the opposite TP, flatten any non-zero exchange-side
// position via MARKET orders, and reset all process-level state to
// INACTIVE.
func (c *CascadeMaster) teardown(ctx context.Context) {
	if c.pendingChild != nil {
		_ = c.GW.CancelOrder(ctx, c.Symbol, c.pendingChild.OrderID)
	}
	if c.tpLong != nil {
		_ = c.GW.CancelOrder(ctx, c.Symbol, c.tpLong.OrderID)
	}
	if c.tpShort != nil {
		_ = c.GW.CancelOrder(ctx, c.Symbol, c.tpShort.OrderID)
	}

	c.flatten(ctx, signal.SideLong)
	c.flatten(ctx, signal.SideShort)
	c.reset()
}

func (c *CascadeMaster) flatten(ctx context.Context, side signal.Side) {
	_, posSide := sideParams(side)
	pos, err := c.GW.GetPosition(ctx, c.Symbol, posSide)
	if err != nil || pos.PositionAmt == 0 {
		return
	}

	fmtLevels, err := newFormattedLevels(ctx, c.GW, c.Symbol)
	if err != nil {
		return
	}
	closeSide, _ := sideParams(oppositeSide(side))
	_, _ = c.GW.PlaceOrder(ctx, exchange.PlaceParams{
		Symbol: c.Symbol, Side: closeSide, PositionSide: posSide,
		Kind: exchange.OrderKindMarket, Qty: fmtLevels.qty(abs(pos.PositionAmt)), ReduceOnly: true,
	})
}

func (c *CascadeMaster) reset() {
	*c = CascadeMaster{Common: c.Common, cfg: c.cfg, window: c.window, state: cascadeInactive}
}

func (c *CascadeMaster) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"state":                c.state,
		"current_long_qty":     c.currentLongQty,
		"current_short_qty":    c.currentShortQty,
		"cascade_orders_count": c.cascadeOrdersCount,
	}
}

func (c *CascadeMaster) Shutdown(ctx context.Context) {}
