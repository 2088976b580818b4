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

const s2Symbol = "BTCUSDC"

func newS2Strategy(t *testing.T) (*AllOrNothing, *mockexchange.Exchange, *[]exchange.PlaceParams) {
	t.Helper()
	mock := mockexchange.New()
	mock.Precision[s2Symbol] = exchange.SymbolPrecision{TickSize: "0.1", StepSize: "0.001", MinQty: "0.001"}

	var placed []exchange.PlaceParams
	mock.PlaceOrderFunc = func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
		placed = append(placed, p)
		mock.NextOrder++
		ref := &exchange.OrderRef{
			OrderID: mock.NextOrder, Symbol: p.Symbol, Side: p.Side, PositionSide: p.PositionSide,
			Kind: p.Kind, Qty: p.Qty, StopPrice: p.StopPrice, LimitPrice: p.Price,
		}
		if p.Kind == exchange.OrderKindMarket {
			ref.Status = exchange.OrderStatusFilled
			ref.AvgPrice = 101.0
		} else {
			ref.Status = exchange.OrderStatusNew
		}
		mock.Orders[ref.OrderID] = ref
		return ref, nil
	}

	cfg := AllOrNothingConfig{
		Sizing:            SizingConfig{QuantityMode: "FIXED", InitialQuantity: 0.001},
		SLLookbackCandles: 5,
		SLOffsetPercent:   0.00001,
		TPPercent:         0.003,
	}
	strat := NewAllOrNothing(mock, s2Symbol, cfg)

	lows := []float64{100, 99, 98, 97, 96}
	for _, low := range lows {
		strat.window.Push(indicators.Candle{Low: low, High: low + 1, Close: low + 0.5})
	}

	return strat, mock, &placed
}

// TestAllOrNothingLifecycle exercises scenario S2: SL/TP placement
// levels match the exact expected formatted values, and a TP fill
// cancels the sibling SL and clears side state.
func TestAllOrNothingLifecycle(t *testing.T) {
	strat, mock, placed := newS2Strategy(t)
	ctx := context.Background()

	if err := strat.OnSignal(ctx, signal.Signal{Side: signal.SideLong}); err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}

	var slOrder, tpOrder *exchange.PlaceParams
	for i := range *placed {
		p := &(*placed)[i]
		switch p.Kind {
		case exchange.OrderKindStopMarket:
			slOrder = p
		case exchange.OrderKindTakeProfit:
			tpOrder = p
		}
	}
	if slOrder == nil || tpOrder == nil {
		t.Fatalf("expected both SL and TP placements, got %+v", *placed)
	}
	if slOrder.StopPrice != "95.9" {
		t.Errorf("expected SL at 95.9, got %s", slOrder.StopPrice)
	}
	if tpOrder.Price != "101.3" {
		t.Errorf("expected TP at 101.3, got %s", tpOrder.Price)
	}

	if !strat.long.active {
		t.Fatal("expected LONG side active after entry")
	}

	tpOrderID := strat.long.tpRef.OrderID
	slOrderID := strat.long.slRef.OrderID

	if err := strat.OnOrderUpdate(ctx, userdata.OrderUpdate{OrderID: tpOrderID, Status: exchange.OrderStatusFilled}); err != nil {
		t.Fatalf("OnOrderUpdate failed: %v", err)
	}

	if strat.long.active {
		t.Error("expected LONG side inactive after TP fill")
	}
	if _, ok := mock.Orders[slOrderID]; !ok {
		t.Fatal("expected SL order to still be tracked")
	}
	if mock.Orders[slOrderID].Status != exchange.OrderStatusCanceled {
		t.Errorf("expected SL cancelled after TP fill, got status %s", mock.Orders[slOrderID].Status)
	}
}

// TestAllOrNothingRetryExhaustion exercises scenario S6: sustained SL
// placement failure exhausts the 5-attempt retry, clears side state,
// and surfaces an error with no SL or TP left on the exchange.
func TestAllOrNothingRetryExhaustion(t *testing.T) {
	mock := mockexchange.New()
	mock.Precision[s2Symbol] = exchange.SymbolPrecision{TickSize: "0.1", StepSize: "0.001", MinQty: "0.001"}

	attempts := 0
	mock.PlaceOrderFunc = func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
		if p.Kind == exchange.OrderKindMarket {
			return &exchange.OrderRef{OrderID: 1, Status: exchange.OrderStatusFilled, AvgPrice: 101.0}, nil
		}
		attempts++
		return nil, errPlacementFailed
	}

	cfg := AllOrNothingConfig{
		Sizing:            SizingConfig{QuantityMode: "FIXED", InitialQuantity: 0.001},
		SLLookbackCandles: 5,
		SLOffsetPercent:   0.00001,
		TPPercent:         0.003,
	}
	strat := NewAllOrNothing(mock, s2Symbol, cfg)
	for _, low := range []float64{100, 99, 98, 97, 96} {
		strat.window.Push(indicators.Candle{Low: low, High: low + 1, Close: low + 0.5})
	}

	err := strat.OnSignal(context.Background(), signal.Signal{Side: signal.SideLong})
	if err == nil {
		t.Fatal("expected a fatal error after SL retry exhaustion")
	}
	if attempts != 5 {
		t.Errorf("expected 5 SL placement attempts, got %d", attempts)
	}
	if strat.long.active {
		t.Error("expected side state cleared after retry exhaustion")
	}
	if mock.OpenOrderCount() != 0 {
		t.Errorf("expected no open orders on the exchange, got %d", mock.OpenOrderCount())
	}
}

type placementError struct{ msg string }

func (e *placementError) Error() string { return e.msg }

var errPlacementFailed = &placementError{"stop market placement refused"}
