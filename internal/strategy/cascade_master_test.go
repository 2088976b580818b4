package strategy

import (
	"context"
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/mockexchange"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

const cascadeSymbol = "XYZUSDC"

func newCascadeForTest(t *testing.T) (*CascadeMaster, *mockexchange.Exchange, *[]exchange.PlaceParams) {
	t.Helper()
	mock := mockexchange.New()
	mock.Precision[cascadeSymbol] = exchange.SymbolPrecision{TickSize: "1", StepSize: "1", MinQty: "1"}

	var placed []exchange.PlaceParams
	mock.PlaceOrderFunc = func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
		placed = append(placed, p)
		mock.NextOrder++
		ref := &exchange.OrderRef{
			OrderID: mock.NextOrder, Symbol: p.Symbol, Side: p.Side, PositionSide: p.PositionSide,
			Kind: p.Kind, Qty: p.Qty, StopPrice: p.StopPrice, LimitPrice: p.Price,
			Status: exchange.OrderStatusNew,
		}
		if p.Kind == exchange.OrderKindMarket {
			ref.Status = exchange.OrderStatusFilled
			ref.AvgPrice = 100
		}
		mock.Orders[ref.OrderID] = ref
		return ref, nil
	}

	cfg := CascadeMasterConfig{
		Sizing:                  SizingConfig{QuantityMode: "FIXED", InitialQuantity: 10},
		HedgeLookbackCandles:    1,
		HedgeQuantityMultiplier: 2,
		MaxOrders:               2,
		BaseMultiplier:          1,
		PositionIncrement:       0,
	}
	strat := NewCascadeMaster(mock, cascadeSymbol, cfg)
	strat.window.Push(indicators.Candle{Low: 90, High: 110, Close: 100})

	return strat, mock, &placed
}

// TestCascadeMasterAlternationAndTeardown exercises scenario S3: the
// hedge fill seeds both reference prices, each cascade child
// alternates sides per the 2X-Y rule and refreshes both TPs, and a TP
// fill tears the whole ladder down.
func TestCascadeMasterAlternationAndTeardown(t *testing.T) {
	strat, mock, placed := newCascadeForTest(t)
	ctx := context.Background()

	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if strat.state != cascadeWaitingHedge {
		t.Fatalf("expected WAITING_HEDGE, got %s", strat.state)
	}
	if strat.hedgeRef.StopPrice != "90" || strat.hedgeRef.Qty != "20" {
		t.Fatalf("expected hedge STOP_MARKET at 90 qty 20, got %s/%s", strat.hedgeRef.StopPrice, strat.hedgeRef.Qty)
	}

	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{
		OrderID: strat.hedgeRef.OrderID, Status: exchange.OrderStatusFilled,
		AvgPrice: 95, ExecutedQty: 20, PositionSide: "SHORT",
	}); err != nil {
		t.Fatalf("hedge fill update failed: %v", err)
	}
	if strat.state != cascadeActive {
		t.Fatalf("expected ACTIVE after hedge fill, got %s", strat.state)
	}
	if strat.tpLong.LimitPrice != "105" || strat.tpShort.LimitPrice != "90" {
		t.Fatalf("expected TPs at 105/90, got %s/%s", strat.tpLong.LimitPrice, strat.tpShort.LimitPrice)
	}
	if strat.pendingChild.Side != exchange.SideBuy || strat.pendingChild.Qty != "30" || strat.pendingChild.StopPrice != "100" {
		t.Fatalf("expected first cascade child LONG qty 30 at 100, got %+v", strat.pendingChild)
	}

	firstChildID := strat.pendingChild.OrderID
	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{
		OrderID: firstChildID, Status: exchange.OrderStatusFilled,
		AvgPrice: 100, ExecutedQty: 30, PositionSide: "LONG",
	}); err != nil {
		t.Fatalf("first cascade child fill failed: %v", err)
	}
	if strat.cascadeOrdersCount != 1 {
		t.Fatalf("expected cascade_orders_count 1, got %d", strat.cascadeOrdersCount)
	}
	if strat.tpLong.LimitPrice != "110" {
		t.Fatalf("expected long TP refreshed to 110, got %s", strat.tpLong.LimitPrice)
	}
	if strat.pendingChild.Side != exchange.SideSell || strat.pendingChild.Qty != "60" || strat.pendingChild.StopPrice != "95" {
		t.Fatalf("expected second cascade child SHORT qty 60 at 95, got %+v", strat.pendingChild)
	}

	secondChildID := strat.pendingChild.OrderID
	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{
		OrderID: secondChildID, Status: exchange.OrderStatusFilled,
		AvgPrice: 95, ExecutedQty: 60, PositionSide: "SHORT",
	}); err != nil {
		t.Fatalf("second cascade child fill failed: %v", err)
	}
	if strat.state != cascadeStopped {
		t.Fatalf("expected STOPPED at MAX_ORDERS, got %s", strat.state)
	}
	if strat.tpLong.LimitPrice != "115" || strat.tpShort.LimitPrice != "80" {
		t.Fatalf("expected final TPs at 115/80, got %s/%s", strat.tpLong.LimitPrice, strat.tpShort.LimitPrice)
	}

	mock.SetPosition(cascadeSymbol, exchange.PositionSideLong, 100, 40)
	mock.SetPosition(cascadeSymbol, exchange.PositionSideShort, 95, 80)
	tpLongID := strat.tpLong.OrderID

	*placed = nil
	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{OrderID: tpLongID, Status: exchange.OrderStatusFilled}); err != nil {
		t.Fatalf("TP fill teardown failed: %v", err)
	}

	if strat.state != cascadeInactive {
		t.Fatalf("expected INACTIVE after teardown, got %s", strat.state)
	}
	if strat.tpLong != nil || strat.tpShort != nil || strat.pendingChild != nil {
		t.Fatal("expected all order refs cleared after teardown")
	}

	var flattenOrders int
	for _, p := range *placed {
		if p.Kind == exchange.OrderKindMarket && p.ReduceOnly {
			flattenOrders++
		}
	}
	if flattenOrders != 2 {
		t.Fatalf("expected 2 flatten MARKET orders, got %d", flattenOrders)
	}
}
