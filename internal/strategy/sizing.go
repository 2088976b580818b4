package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
)

// SizingConfig is the subset of TRADING_CONFIG the sizing rule needs.
type SizingConfig struct {
	QuantityMode      string // MINIMUM, FIXED, PERCENTAGE
	InitialQuantity   float64
	BalancePercentage float64
}

// ComputeQuantity implements spec §6's three sizing rules, grounded on
// the teacher's internal/risk/manager.go CalculatePositionSize
// dispatch (percent/fixed branches); the teacher's Kelly/ATR branches
// have no analog in TRADING_CONFIG and are not reused.
func ComputeQuantity(ctx context.Context, gw exchange.Gateway, symbol string, cfg SizingConfig, entryPrice, protectiveLevel float64) (float64, error) {
	precision, err := gw.GetSymbolPrecision(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("sizing: %w", err)
	}

	switch cfg.QuantityMode {
	case "MINIMUM":
		minQty, err := strconv.ParseFloat(precision.MinQty, 64)
		if err != nil {
			return 0, fmt.Errorf("sizing: invalid min qty %q: %w", precision.MinQty, err)
		}
		return minQty, nil

	case "FIXED":
		return cfg.InitialQuantity, nil

	case "PERCENTAGE":
		balance, err := gw.GetBalance(ctx)
		if err != nil {
			return 0, fmt.Errorf("sizing: %w", err)
		}
		riskPerUnit := math.Abs(entryPrice - protectiveLevel)
		if riskPerUnit == 0 {
			return 0, fmt.Errorf("sizing: zero distance between entry and protective level")
		}
		riskAmount := balance * (cfg.BalancePercentage / 100)
		return riskAmount / riskPerUnit, nil

	default:
		return 0, fmt.Errorf("sizing: unknown quantity mode %q", cfg.QuantityMode)
	}
}
