package runtime

import (
	"context"
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/marketdata"
	"github.com/nirre55/futures-trading-bot/internal/mockexchange"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/strategy"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

// fakeStrategy is a minimal Strategy implementation that records every
// call it receives, so tests can assert the runtime's wiring without
// pulling in a concrete strategy's own behavior.
type fakeStrategy struct {
	canAccept      bool
	hasOutstanding bool
	signals        []signal.Signal
	candles        []strategy.ClosedCandleContext
	orderUpdates   []userdata.OrderUpdate
}

func (f *fakeStrategy) OnSignal(ctx context.Context, sig signal.Signal) error {
	f.signals = append(f.signals, sig)
	return nil
}
func (f *fakeStrategy) OnClosedCandle(ctx context.Context, cctx strategy.ClosedCandleContext) error {
	f.candles = append(f.candles, cctx)
	return nil
}
func (f *fakeStrategy) OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error {
	f.orderUpdates = append(f.orderUpdates, upd)
	return nil
}
func (f *fakeStrategy) CanAcceptSignal(side string) bool { return f.canAccept }
func (f *fakeStrategy) HasOutstandingTP() bool           { return f.hasOutstanding }
func (f *fakeStrategy) Snapshot() map[string]interface{} { return nil }
func (f *fakeStrategy) Shutdown(ctx context.Context)     {}

func newRuntimeForTest(strat *fakeStrategy) (*Runtime, *mockexchange.Exchange) {
	mock := mockexchange.New()
	cfg := Config{
		RSIPeriods: []int{3},
		Thresholds: map[int]indicators.Thresholds{3: {Oversold: 30, Overbought: 70}},
	}
	rt := New(mock, "BTCUSDC", "1m", "wss://example", strat, cfg)
	return rt, mock
}

func feed(rt *Runtime, opens []float64) {
	for i, o := range opens {
		c := indicators.Candle{OpenTime: int64(i), Open: o, High: o + 1, Low: o - 1, Close: o}
		rt.handleClosedCandle(context.Background(), marketdata.ClosedCandle{Candle: c, OpenMs: int64(i)})
	}
}

// TestHandleClosedCandleFeedsStrategyAndSignalEngine exercises the
// serialization domain's wiring: every closed candle reaches the
// strategy's OnClosedCandle with its RSI snapshot, and the signal
// engine sees the same oversold reading and moves to PENDING_LONG.
func TestHandleClosedCandleFeedsStrategyAndSignalEngine(t *testing.T) {
	strat := &fakeStrategy{canAccept: true}
	rt, _ := newRuntimeForTest(strat)

	feed(rt, []float64{100, 99, 98, 97})
	if len(strat.candles) != 4 {
		t.Fatalf("expected 4 OnClosedCandle calls, got %d", len(strat.candles))
	}
	if strat.candles[3].RSI[3].Valid && strat.candles[3].RSI[3].Value >= 30 {
		t.Fatalf("expected oversold RSI after a falling sequence, got %+v", strat.candles[3].RSI[3])
	}
	if got := rt.engine.CurrentState(); got != signal.StatePendingLong {
		t.Fatalf("expected signal engine in %s, got %s", signal.StatePendingLong, got)
	}
}

// TestStrategyGateDelegatesToActiveStrategy confirms the engine's
// RuntimeGate is wired to the strategy the runtime was built with.
func TestStrategyGateDelegatesToActiveStrategy(t *testing.T) {
	strat := &fakeStrategy{canAccept: false, hasOutstanding: true}
	rt, _ := newRuntimeForTest(strat)

	if rt.gate.CanAcceptSignal(string(signal.SideLong)) {
		t.Error("expected gate to report false, matching the strategy")
	}
	if !rt.gate.HasOutstandingTP() {
		t.Error("expected gate to report true, matching the strategy")
	}
}

// TestHandleOrderUpdateReachesStrategy confirms user-data events are
// routed to the active strategy untouched.
func TestHandleOrderUpdateReachesStrategy(t *testing.T) {
	strat := &fakeStrategy{canAccept: true}
	rt, _ := newRuntimeForTest(strat)

	upd := userdata.OrderUpdate{OrderID: 42, Status: exchange.OrderStatusFilled}
	rt.handleOrderUpdate(context.Background(), upd)

	if len(strat.orderUpdates) != 1 || strat.orderUpdates[0].OrderID != 42 {
		t.Fatalf("expected order update to reach the strategy, got %+v", strat.orderUpdates)
	}
}
