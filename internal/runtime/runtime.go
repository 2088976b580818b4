// Package runtime is spec §5's single serialization domain: one
// goroutine drains both ingest loops (market-data closed candles,
// user-data order updates) and is the only caller that ever mutates
// the signal engine or the active strategy, so neither needs its own
// locking. Grounded on the teacher's main.go goroutine-plus-channel
// wiring and its SIGINT/SIGTERM graceful-shutdown sequence, adapted
// from the teacher's many independent subsystems down to the two
// streams and one strategy this spec names.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/marketdata"
	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/strategy"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

const (
	// indicatorBufferCap bounds the raw-candle history kept for RSI/HA
	// recomputation. RSI's EMA recurrence has no true warm-up window
	// beyond period+1 candles, so a generous cap trades a small,
	// converging approximation error for a bounded memory footprint
	// rather than keeping the process's entire candle history forever.
	indicatorBufferCap = 1000

	// shutdownDrain is the best-effort window spec §5 gives in-flight
	// order placements before the process exits.
	shutdownDrain = 10 * time.Second
)

// Config is the subset of the top-level configuration the indicator
// pipeline, signal engine, and ingest streams need, independent of
// which strategy is active.
type Config struct {
	RSIPeriods       []int
	Thresholds       map[int]indicators.Thresholds
	RSIOnHA          bool
	VolumeValidation bool
	VolumeLookback   int

	ReconnectionEnabled        bool
	ReconnectionMaxAttempts    int
	ReconnectionDelaySeconds   int
	ReconnectionTimeoutSeconds int
}

func (c Config) marketReconnect() marketdata.ReconnectionConfig {
	return marketdata.ReconnectionConfig{
		Enabled:        c.ReconnectionEnabled,
		MaxAttempts:    c.ReconnectionMaxAttempts,
		DelaySeconds:   c.ReconnectionDelaySeconds,
		TimeoutSeconds: c.ReconnectionTimeoutSeconds,
	}
}

func (c Config) userReconnect() userdata.ReconnectionConfig {
	return userdata.ReconnectionConfig{
		Enabled:        c.ReconnectionEnabled,
		MaxAttempts:    c.ReconnectionMaxAttempts,
		DelaySeconds:   c.ReconnectionDelaySeconds,
		TimeoutSeconds: c.ReconnectionTimeoutSeconds,
	}
}

// strategyGate adapts the active strategy to signal.RuntimeGate. It
// starts out wired to a concrete strategy at construction time -- the
// gate and the engine are built together in New, after the strategy
// already exists, so there is no nil window in practice; the nil
// checks below are purely defensive.
type strategyGate struct {
	strat strategy.Strategy
}

func (g *strategyGate) CanAcceptSignal(side string) bool {
	if g.strat == nil {
		return true
	}
	return g.strat.CanAcceptSignal(side)
}

func (g *strategyGate) HasOutstandingTP() bool {
	if g.strat == nil {
		return false
	}
	return g.strat.HasOutstandingTP()
}

// Runtime owns the signal engine, the single active strategy, and the
// two ingest streams, and drives all three from one goroutine.
type Runtime struct {
	symbol string
	gw     exchange.Gateway
	log    *logging.Logger
	cfg    Config

	engine *signal.Engine
	strat  strategy.Strategy
	gate   *strategyGate

	market *marketdata.Stream
	user   *userdata.Stream

	marketEvents chan marketdata.ClosedCandle
	orderEvents  chan userdata.OrderUpdate

	candles []indicators.Candle
}

// New wires the signal engine to strat (already constructed by
// strategy.New against the same gateway) and builds the market-data
// and user-data streams for symbol/interval against baseURL.
func New(gw exchange.Gateway, symbol, interval, baseURL string, strat strategy.Strategy, cfg Config) *Runtime {
	gate := &strategyGate{strat: strat}
	engine := signal.New(signal.Config{
		RSIPeriods:       cfg.RSIPeriods,
		Thresholds:       cfg.Thresholds,
		VolumeValidation: cfg.VolumeValidation,
		VolumeLookback:   cfg.VolumeLookback,
	}, gate)

	marketEvents := make(chan marketdata.ClosedCandle, 32)
	orderEvents := make(chan userdata.OrderUpdate, 32)

	rt := &Runtime{
		symbol:       symbol,
		gw:           gw,
		log:          logging.WithComponent("runtime"),
		cfg:          cfg,
		engine:       engine,
		strat:        strat,
		gate:         gate,
		marketEvents: marketEvents,
		orderEvents:  orderEvents,
	}
	rt.market = marketdata.New(baseURL, symbol, interval, marketEvents, cfg.marketReconnect())
	rt.user = userdata.New(baseURL, gw, orderEvents, cfg.userReconnect())
	return rt
}

// Engine exposes the signal engine for status reporting.
func (r *Runtime) Engine() *signal.Engine { return r.engine }

// Strategy exposes the active strategy for status reporting.
func (r *Runtime) Strategy() strategy.Strategy { return r.strat }

// Run starts both ingest loops and processes their events from this
// single serialization domain until ctx is canceled. On cancellation
// it stops accepting new signals, gives in-flight strategy work up to
// shutdownDrain to settle, and returns once both ingest goroutines
// have exited. Run never cancels exchange-side orders; strat.Shutdown
// is responsible for leaving protective orders live.
//
// Per spec §5, a stream that exhausts its bounded reconnection budget
// terminates and signals the supervisor to shut down: Run treats that
// the same as a cancellation of ctx, stopping the whole runtime rather
// than continuing with one ingest loop dead.
func (r *Runtime) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamErr := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := r.market.Run(runCtx); err != nil {
			streamErr <- fmt.Errorf("market data stream: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := r.user.Run(runCtx); err != nil {
			streamErr <- fmt.Errorf("user data stream: %w", err)
		}
	}()

	r.loop(runCtx, streamErr)

	cancel()
	r.drain()
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancelShutdown()
	r.strat.Shutdown(shutdownCtx)
}

// loop is the command-processing loop: the only place that ever calls
// into the signal engine or the active strategy. Every event gets its
// own trace id so the two or three log lines it produces downstream
// can be correlated back to the candle/order update that caused them.
func (r *Runtime) loop(ctx context.Context, streamErr <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-streamErr:
			r.log.Error("ingest stream exhausted its reconnection budget, shutting down: %v", err)
			return
		case cc := <-r.marketEvents:
			tctx, _ := logging.WithTraceContext(ctx)
			r.handleClosedCandle(tctx, cc)
		case upd := <-r.orderEvents:
			tctx, _ := logging.WithTraceContext(ctx)
			r.handleOrderUpdate(tctx, upd)
		}
	}
}

// drain gives any already-buffered events up to shutdownDrain to be
// processed before the process exits, best effort per spec §5.
func (r *Runtime) drain() {
	deadline := time.After(shutdownDrain)
	for {
		select {
		case cc := <-r.marketEvents:
			r.handleClosedCandle(context.Background(), cc)
		case upd := <-r.orderEvents:
			r.handleOrderUpdate(context.Background(), upd)
		case <-deadline:
			return
		default:
			return
		}
	}
}

func (r *Runtime) handleClosedCandle(ctx context.Context, cc marketdata.ClosedCandle) {
	r.candles = append(r.candles, cc.Candle)
	if len(r.candles) > indicatorBufferCap {
		r.candles = r.candles[len(r.candles)-indicatorBufferCap:]
	}

	haCandles := indicators.HeikinAshi(r.candles)
	lastColor := haCandles[len(haCandles)-1].Color

	closes := make([]float64, len(r.candles))
	if r.cfg.RSIOnHA {
		for i, hc := range haCandles {
			closes[i] = hc.Close
		}
	} else {
		for i, c := range r.candles {
			closes[i] = c.Close
		}
	}

	rsiSeries := indicators.RSIMultiple(closes, r.cfg.RSIPeriods)
	rsiLatest := make(map[int]indicators.RSIValue, len(rsiSeries))
	for period, series := range rsiSeries {
		rsiLatest[period] = indicators.Latest(series)
	}

	cctx := strategy.ClosedCandleContext{Candle: cc.Candle, HAColor: lastColor, RSI: rsiLatest}
	if err := r.strat.OnClosedCandle(ctx, cctx); err != nil {
		logging.FromContext(ctx).Warn("strategy closed-candle handling failed: %v", err)
	}

	r.engine.RecordVolume(cc.Candle.Volume)
	sig := r.engine.ProcessClosedCandle(rsiLatest, lastColor, cc.Candle.Volume)
	if sig == nil {
		return
	}
	sigLog := logging.SignalContext(r.symbol, string(sig.Side))
	sigLog.Info("signal confirmed, dispatching to strategy")
	if err := r.strat.OnSignal(ctx, *sig); err != nil {
		sigLog.Warn("strategy signal handling failed: %v", err)
	}
	r.engine.Consume()
}

func (r *Runtime) handleOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) {
	if err := r.strat.OnOrderUpdate(ctx, upd); err != nil {
		logging.FromContext(ctx).Warn("strategy order-update handling failed: %v", err)
	}
}
