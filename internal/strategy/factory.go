package strategy

import (
	"fmt"

	"github.com/nirre55/futures-trading-bot/config"
	"github.com/nirre55/futures-trading-bot/internal/exchange"
	"github.com/nirre55/futures-trading-bot/internal/indicators"
)

// New constructs the single active strategy named by
// cfg.Strategy.StrategyType, wiring the relevant TRADING_CONFIG and
// per-strategy sub-configs into it.
func New(gw exchange.Gateway, symbol string, cfg *config.Config) (Strategy, error) {
	sizing := SizingConfig{
		QuantityMode:      string(cfg.Trading.QuantityMode),
		InitialQuantity:   cfg.Trading.InitialQuantity,
		BalancePercentage: cfg.Trading.BalancePercentage,
	}

	switch cfg.Strategy.StrategyType {
	case config.StrategyAllOrNothing:
		return NewAllOrNothing(gw, symbol, AllOrNothingConfig{
			Sizing:                sizing,
			SLLookbackCandles:     cfg.AllOrNothing.SLLookbackCandles,
			SLOffsetPercent:       cfg.AllOrNothing.SLOffsetPercent,
			TPPercent:             cfg.AllOrNothing.TPPercent,
			PriceOffset:           cfg.AllOrNothing.PriceOffset,
			DynamicRSIExitEnabled: cfg.AllOrNothing.DynamicRSIExit.Enabled,
			RSIThresholds:         rsiThresholds(cfg.Signal.RSIThresholds),
			TrailingStopEnabled:   cfg.AllOrNothing.TrailingStop.Enabled,
			TrailingStopPriceTrigger:    cfg.AllOrNothing.TrailingStop.PriceTriggerPercent,
			TrailingStopSLAdjustPercent: cfg.AllOrNothing.TrailingStop.SLAdjustmentPercent,
		}), nil

	case config.StrategyAccumulator:
		return NewAccumulator(gw, symbol, AccumulatorConfig{
			Sizing:           sizing,
			TPPercent:        cfg.Accumulator.TPPercent,
			MaxAccumulations: cfg.Accumulator.MaxAccumulations,
			PriceOffset:      cfg.Accumulator.PriceOffset,
		}), nil

	case config.StrategyCascadeMaster:
		return NewCascadeMaster(gw, symbol, CascadeMasterConfig{
			Sizing:                  sizing,
			HedgeLookbackCandles:    cfg.Hedging.LookbackCandles,
			HedgeQuantityMultiplier: cfg.Hedging.QuantityMultiplier,
			MaxOrders:               cfg.Cascade.MaxOrders,
			BaseMultiplier:          cfg.TP.BaseMultiplier,
			PositionIncrement:       cfg.TP.PositionIncrement,
			PriceOffset:             cfg.TP.PriceOffset,
		}), nil

	case config.StrategyOneOrMore:
		return NewOneOrMore(gw, symbol, OneOrMoreConfig{
			Sizing:                     sizing,
			SLLookbackCandles:          cfg.OneOrMore.SLLookbackCandles,
			SLOffsetPercent:            cfg.OneOrMore.SLOffsetPercent,
			HedgeQuantityMultiplier:    cfg.OneOrMore.HedgeQuantityMultiplier,
			TPSafetyOffsetPercent:      cfg.OneOrMore.TPSafetyOffsetPercent,
			MinDistancePercent:         cfg.OneOrMore.MinDistancePercent,
			SmallDistanceOffsetPercent: cfg.OneOrMore.SmallDistanceOffsetPercent,
		}), nil

	default:
		return nil, fmt.Errorf("strategy: unknown strategy type %q", cfg.Strategy.StrategyType)
	}
}

func rsiThresholds(in map[int]config.RSIThreshold) map[int]indicators.Thresholds {
	out := make(map[int]indicators.Thresholds, len(in))
	for period, t := range in {
		out[period] = indicators.Thresholds{Oversold: t.Oversold, Overbought: t.Overbought}
	}
	return out
}
