package strategy

import (
	"context"
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/mockexchange"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

const accSymbol = "ETHUSDC"

func newAccumulatorForTest() (*Accumulator, *mockexchange.Exchange) {
	mock := mockexchange.New()
	mock.Precision[accSymbol] = exchange.SymbolPrecision{TickSize: "0.01", StepSize: "0.01", MinQty: "0.01"}
	cfg := AccumulatorConfig{
		Sizing:           SizingConfig{QuantityMode: "FIXED", InitialQuantity: 1.0},
		TPPercent:        0.01,
		MaxAccumulations: 2,
	}
	return NewAccumulator(mock, accSymbol, cfg), mock
}

// TestAccumulatorAveragesDownAndRecomputesTP exercises scenario S4:
// each signal adds to the position and replaces the TP with a fresh
// level based on the exchange-reported average entry price.
func TestAccumulatorAveragesDownAndRecomputesTP(t *testing.T) {
	strat, mock := newAccumulatorForTest()
	ctx := context.Background()

	mock.SetPosition(accSymbol, exchange.PositionSideLong, 100.0, 1.0)
	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("first OnSignal failed: %v", err)
	}
	firstTP := strat.long.tpRef
	if firstTP == nil {
		t.Fatal("expected a TP placed after first accumulation")
	}
	if firstTP.LimitPrice != "101.00" {
		t.Errorf("expected TP at 101.00, got %s", firstTP.LimitPrice)
	}
	if strat.long.accumulationCount != 1 {
		t.Errorf("expected accumulation count 1, got %d", strat.long.accumulationCount)
	}

	mock.SetPosition(accSymbol, exchange.PositionSideLong, 98.0, 2.0)
	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("second OnSignal failed: %v", err)
	}
	secondTP := strat.long.tpRef
	if secondTP == nil || secondTP.OrderID == firstTP.OrderID {
		t.Fatal("expected a new TP order replacing the first")
	}
	if secondTP.LimitPrice != "98.98" {
		t.Errorf("expected TP at 98.98, got %s", secondTP.LimitPrice)
	}
	if mock.Orders[firstTP.OrderID].Status != exchange.OrderStatusCanceled {
		t.Error("expected first TP cancelled after second accumulation")
	}
	if strat.long.accumulationCount != 2 {
		t.Errorf("expected accumulation count 2, got %d", strat.long.accumulationCount)
	}

	if strat.CanAcceptSignal(string(signal.SideLong)) {
		t.Error("expected signal rejection once MAX_ACCUMULATIONS reached")
	}
}

// TestAccumulatorTPRetryExhaustion exercises sustained TP placement
// failure: the bounded retry runs out, OnSignal surfaces a fatal
// error, and the side is left without a TP reference rather than
// silently continuing.
func TestAccumulatorTPRetryExhaustion(t *testing.T) {
	strat, mock := newAccumulatorForTest()
	mock.SetPosition(accSymbol, exchange.PositionSideLong, 100.0, 1.0)

	attempts := 0
	mock.PlaceOrderFunc = func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
		if p.Kind == exchange.OrderKindMarket {
			return &exchange.OrderRef{OrderID: 1, Status: exchange.OrderStatusFilled, AvgPrice: 100.0}, nil
		}
		attempts++
		return nil, errPlacementFailed
	}

	err := strat.OnSignal(context.Background(), signal.Signal{Side: signal.SideLong})
	if err == nil {
		t.Fatal("expected a fatal error after TP retry exhaustion")
	}
	if attempts != 5 {
		t.Errorf("expected 5 TP placement attempts, got %d", attempts)
	}
	if strat.long.tpRef != nil {
		t.Error("expected no TP reference left after retry exhaustion")
	}
}

// TestAccumulatorResetsOnTPFill verifies TP fill clears all side state.
func TestAccumulatorResetsOnTPFill(t *testing.T) {
	strat, mock := newAccumulatorForTest()
	ctx := context.Background()
	mock.SetPosition(accSymbol, exchange.PositionSideLong, 100.0, 1.0)

	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	tpID := strat.long.tpRef.OrderID

	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{OrderID: tpID, Status: exchange.OrderStatusFilled}); err != nil {
		t.Fatalf("OnOrderUpdate failed: %v", err)
	}

	if strat.long.tpRef != nil || strat.long.accumulationCount != 0 {
		t.Error("expected side fully reset after TP fill")
	}
}
