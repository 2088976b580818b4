package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/nirre55/futures-trading-bot/config"
	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
	"github.com/nirre55/futures-trading-bot/internal/runtime"
	"github.com/nirre55/futures-trading-bot/internal/secrets"
	"github.com/nirre55/futures-trading-bot/internal/statusserver"
	"github.com/nirre55/futures-trading-bot/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	ctx := context.Background()
	secretsClient, err := secrets.NewClient(cfg.Vault)
	if err != nil {
		logger.Fatal("failed to construct vault client: %v", err)
	}
	creds, err := secretsClient.Load(ctx, secrets.Credentials{APIKey: cfg.APIKey, SecretKey: cfg.SecretKey})
	if err != nil {
		logger.Fatal("failed to resolve exchange credentials: %v", err)
	}

	gw := exchange.New(creds.APIKey, creds.SecretKey, cfg.Testnet)
	logger.Info("exchange gateway constructed for symbol %s (testnet=%v)", cfg.Symbol, cfg.Testnet)

	strat, err := strategy.New(gw, cfg.Symbol, cfg)
	if err != nil {
		logger.Fatal("failed to construct strategy %s: %v", cfg.Strategy.StrategyType, err)
	}
	logger.Info("strategy %s constructed", cfg.Strategy.StrategyType)

	rt := runtime.New(gw, cfg.Symbol, cfg.Timeframe, wsBaseURL(cfg.Testnet), strat, runtime.Config{
		RSIPeriods:       rsiPeriods(cfg.Signal.RSIThresholds),
		Thresholds:       rsiThresholds(cfg.Signal.RSIThresholds),
		RSIOnHA:          cfg.Signal.RSIOnHA,
		VolumeValidation: cfg.Signal.VolumeValidation.Enabled,
		VolumeLookback:   cfg.Signal.VolumeValidation.LookbackCandles,

		ReconnectionEnabled:        cfg.Reconnection.Enabled,
		ReconnectionMaxAttempts:    cfg.Reconnection.MaxAttempts,
		ReconnectionDelaySeconds:   cfg.Reconnection.DelaySeconds,
		ReconnectionTimeoutSeconds: cfg.Reconnection.TimeoutSeconds,
	})

	runCtx, cancel := context.WithCancel(ctx)
	runtimeDone := make(chan struct{})
	go func() {
		defer close(runtimeDone)
		rt.Run(runCtx)
	}()

	var statusDone chan struct{}
	if cfg.Status.Enabled {
		statusDone = make(chan struct{})
		statusSrv := statusserver.New(statusserver.Config{Host: "0.0.0.0", Port: cfg.Status.Port}, cfg.Symbol, rt)
		go func() {
			defer close(statusDone)
			if err := statusSrv.Run(runCtx); err != nil {
				logger.Warn("status server exited: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, draining in-flight work")
	case <-runtimeDone:
		logger.Warn("runtime exited on its own (an ingest stream exhausted its reconnection budget)")
	}
	cancel()

	<-runtimeDone
	if statusDone != nil {
		<-statusDone
	}
	logger.Info("shutdown complete")
}

// wsBaseURL mirrors exchange.New's REST base-URL selection for the
// websocket endpoints, which live on separate hosts from the REST API.
func wsBaseURL(testnet bool) string {
	if testnet {
		return "wss://stream.binancefuture.com"
	}
	return "wss://fstream.binance.com"
}

func rsiPeriods(thresholds map[int]config.RSIThreshold) []int {
	periods := make([]int, 0, len(thresholds))
	for period := range thresholds {
		periods = append(periods, period)
	}
	sort.Ints(periods)
	return periods
}

func rsiThresholds(in map[int]config.RSIThreshold) map[int]indicators.Thresholds {
	out := make(map[int]indicators.Thresholds, len(in))
	for period, t := range in {
		out[period] = indicators.Thresholds{Oversold: t.Oversold, Overbought: t.Overbought}
	}
	return out
}
