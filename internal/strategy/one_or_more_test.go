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

const oneOrMoreSymbol = "ABCUSDC"

func newOneOrMoreForTest(t *testing.T) (*OneOrMore, *mockexchange.Exchange, *[]exchange.PlaceParams) {
	t.Helper()
	mock := mockexchange.New()
	mock.Precision[oneOrMoreSymbol] = exchange.SymbolPrecision{TickSize: "1", StepSize: "1", MinQty: "1"}

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

	cfg := OneOrMoreConfig{
		Sizing:                  SizingConfig{QuantityMode: "FIXED", InitialQuantity: 10},
		SLLookbackCandles:       1,
		SLOffsetPercent:         0,
		HedgeQuantityMultiplier: 1,
		TPSafetyOffsetPercent:   0,
		MinDistancePercent:      0,
	}
	strat := NewOneOrMore(mock, oneOrMoreSymbol, cfg)
	strat.window.Push(indicators.Candle{Low: 90, High: 110, Close: 100})

	return strat, mock, &placed
}

// TestOneOrMoreCycleAndTeardown exercises scenario S5: the entry and
// hedge legs get symmetric TPs around their own reference prices, and
// a TP fill tears the whole cycle down with both legs flattened.
func TestOneOrMoreCycleAndTeardown(t *testing.T) {
	strat, mock, placed := newOneOrMoreForTest(t)
	ctx := context.Background()

	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if !strat.long.active {
		t.Fatal("expected LONG side active after entry")
	}
	if strat.long.hedgeRef.StopPrice != "90" {
		t.Fatalf("expected hedge at 90, got %s", strat.long.hedgeRef.StopPrice)
	}
	if strat.long.distance != 10 {
		t.Fatalf("expected distance 10, got %v", strat.long.distance)
	}
	if strat.long.tpSignalRef.LimitPrice != "110" {
		t.Fatalf("expected signal TP at 110, got %s", strat.long.tpSignalRef.LimitPrice)
	}

	if strat.CanAcceptSignal(string(signal.SideShort)) {
		t.Error("expected signal rejection while a cycle is active on either side")
	}

	hedgeID := strat.long.hedgeRef.OrderID
	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{
		OrderID: hedgeID, Status: exchange.OrderStatusFilled, AvgPrice: 90, ExecutedQty: 10,
	}); err != nil {
		t.Fatalf("hedge fill update failed: %v", err)
	}
	if strat.long.tpHedgeRef == nil {
		t.Fatal("expected hedge-leg TP placed after hedge fill")
	}
	if strat.long.tpHedgeRef.LimitPrice != "80" {
		t.Fatalf("expected hedge TP at 80, got %s", strat.long.tpHedgeRef.LimitPrice)
	}

	mock.SetPosition(oneOrMoreSymbol, exchange.PositionSideLong, 100, 10)
	mock.SetPosition(oneOrMoreSymbol, exchange.PositionSideShort, 90, 10)

	*placed = nil
	tpSignalID := strat.long.tpSignalRef.OrderID
	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{OrderID: tpSignalID, Status: exchange.OrderStatusFilled}); err != nil {
		t.Fatalf("signal TP fill teardown failed: %v", err)
	}

	if strat.long.active {
		t.Error("expected side fully reset after teardown")
	}
	if strat.CanAcceptSignal(string(signal.SideLong)) == false {
		t.Error("expected signal acceptance restored after teardown")
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

// TestOneOrMoreHedgeTPRetryExhaustion exercises sustained hedge-leg TP
// placement failure after the hedge order fills: the bounded retry
// runs out and the failure is surfaced as a fatal error rather than
// logged and swallowed, leaving the hedge leg's own TP unset.
func TestOneOrMoreHedgeTPRetryExhaustion(t *testing.T) {
	strat, mock, _ := newOneOrMoreForTest(t)
	ctx := context.Background()

	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	hedgeID := strat.long.hedgeRef.OrderID

	attempts := 0
	mock.PlaceOrderFunc = func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
		attempts++
		return nil, errPlacementFailed
	}

	err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{
		OrderID: hedgeID, Status: exchange.OrderStatusFilled, AvgPrice: 90, ExecutedQty: 10,
	})
	if err == nil {
		t.Fatal("expected a fatal error after hedge TP retry exhaustion")
	}
	if attempts != 5 {
		t.Errorf("expected 5 hedge TP placement attempts, got %d", attempts)
	}
	if strat.long.tpHedgeRef != nil {
		t.Error("expected no hedge-leg TP reference left after retry exhaustion")
	}
}
