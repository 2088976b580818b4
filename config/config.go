// Package config loads the bot's single top-level configuration
// struct from an optional JSON file plus environment variable
// overrides, matching the teacher's Load/applyEnvOverrides/
// getEnv*OrDefault pattern, trimmed from its ~19 multi-tenant SaaS
// sub-configs down to the keys spec §6 names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nirre55/futures-trading-bot/internal/secrets"
)

// Config is the single struct built once at startup and handed to
// every component by reference.
type Config struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`

	BaseURL   string `json:"base_url"`
	Testnet   bool   `json:"testnet"`
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`

	Vault secrets.VaultConfig `json:"vault"`

	Reconnection ReconnectionConfig `json:"reconnection"`
	Signal       SignalConfig       `json:"signal"`
	Trading      TradingConfig      `json:"trading"`
	Hedging      HedgingConfig      `json:"hedging"`
	Cascade      CascadeConfig      `json:"cascade"`
	TP           TPConfig           `json:"tp"`
	Accumulator  AccumulatorConfig  `json:"accumulator"`
	AllOrNothing AllOrNothingConfig `json:"all_or_nothing"`
	OneOrMore    OneOrMoreConfig    `json:"one_or_more"`
	Strategy     StrategyConfig     `json:"strategy"`

	Logging LoggingConfig `json:"logging"`
	Status  StatusConfig  `json:"status"`
}

type ReconnectionConfig struct {
	Enabled        bool `json:"enabled"`
	MaxAttempts    int  `json:"max_attempts"`
	DelaySeconds   int  `json:"delay_seconds"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

type RSIThreshold struct {
	Oversold   float64 `json:"oversold"`
	Overbought float64 `json:"overbought"`
}

type VolumeValidationConfig struct {
	Enabled         bool `json:"enabled"`
	LookbackCandles int  `json:"lookback_candles"`
}

type SignalConfig struct {
	RSIOnHA          bool                 `json:"rsi_on_ha"`
	RSIThresholds    map[int]RSIThreshold `json:"rsi_thresholds"`
	VolumeValidation VolumeValidationConfig `json:"volume_validation"`
}

// QuantityMode selects the TRADING_CONFIG sizing rule.
type QuantityMode string

const (
	QuantityModeMinimum    QuantityMode = "MINIMUM"
	QuantityModeFixed      QuantityMode = "FIXED"
	QuantityModePercentage QuantityMode = "PERCENTAGE"
)

type TradingConfig struct {
	QuantityMode      QuantityMode `json:"quantity_mode"`
	InitialQuantity   float64      `json:"initial_quantity"`
	BalancePercentage float64      `json:"balance_percentage"`
}

type HedgingConfig struct {
	Enabled            bool `json:"enabled"`
	LookbackCandles    int  `json:"lookback_candles"`
	QuantityMultiplier float64 `json:"quantity_multiplier"`
}

type CascadeConfig struct {
	Enabled                bool `json:"enabled"`
	MaxOrders              int  `json:"max_orders"`
	PollingIntervalSeconds int  `json:"polling_interval_seconds"`
	RetryAttempts          int  `json:"retry_attempts"`
	RetryDelaySeconds      int  `json:"retry_delay_seconds"`
}

type TPConfig struct {
	Enabled          bool    `json:"enabled"`
	BaseMultiplier   float64 `json:"base_multiplier"`
	PositionIncrement float64 `json:"position_increment"`
	PriceOffset      float64 `json:"price_offset"`
}

type AccumulatorConfig struct {
	Enabled          bool    `json:"enabled"`
	TPPercent        float64 `json:"tp_percent"`
	MaxAccumulations int     `json:"max_accumulations"`
	PriceOffset      float64 `json:"price_offset"`
}

type DynamicRSIExitConfig struct {
	Enabled bool `json:"enabled"`
}

type TrailingStopConfig struct {
	Enabled             bool    `json:"enabled"`
	PriceTriggerPercent float64 `json:"price_trigger_percent"`
	SLAdjustmentPercent float64 `json:"sl_adjustment_percent"`
}

type AllOrNothingConfig struct {
	Enabled          bool                 `json:"enabled"`
	SLLookbackCandles int                 `json:"sl_lookback_candles"`
	SLOffsetPercent  float64              `json:"sl_offset_percent"`
	TPPercent        float64              `json:"tp_percent"`
	PriceOffset      float64              `json:"price_offset"`
	DynamicRSIExit   DynamicRSIExitConfig `json:"dynamic_rsi_exit"`
	TrailingStop     TrailingStopConfig   `json:"trailing_stop"`
}

type AsymmetricTPConfig struct {
	Enabled bool `json:"enabled"`
}

type OneOrMoreConfig struct {
	Enabled                     bool               `json:"enabled"`
	SLLookbackCandles           int                `json:"sl_lookback_candles"`
	SLOffsetPercent             float64            `json:"sl_offset_percent"`
	HedgeQuantityMultiplier     float64            `json:"hedge_quantity_multiplier"`
	TPSafetyOffsetPercent       float64            `json:"tp_safety_offset_percent"`
	MinDistancePercent          float64            `json:"min_distance_percent"`
	SmallDistanceOffsetPercent  float64            `json:"small_distance_offset_percent"`
	RRRatio                     float64            `json:"rr_ratio"`
	AsymmetricTP                AsymmetricTPConfig `json:"asymmetric_tp"`
}

// StrategyType selects which of the four strategies the runtime hosts.
type StrategyType string

const (
	StrategyAccumulator  StrategyType = "ACCUMULATOR"
	StrategyCascadeMaster StrategyType = "CASCADE_MASTER"
	StrategyAllOrNothing StrategyType = "ALL_OR_NOTHING"
	StrategyOneOrMore    StrategyType = "ONE_OR_MORE"
)

type StrategyConfig struct {
	StrategyType StrategyType `json:"strategy_type"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

type StatusConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Load reads an optional config.json, then applies environment
// overrides (which always win), matching the teacher's precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaults()
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		BaseURL:   "https://fapi.binance.com",
		Reconnection: ReconnectionConfig{
			Enabled: true, MaxAttempts: 5, DelaySeconds: 5, TimeoutSeconds: 60,
		},
		Signal: SignalConfig{
			RSIThresholds: map[int]RSIThreshold{
				3: {Oversold: 10, Overbought: 90},
				5: {Oversold: 20, Overbought: 80},
				7: {Oversold: 30, Overbought: 70},
			},
		},
		Trading: TradingConfig{QuantityMode: QuantityModeMinimum},
		Strategy: StrategyConfig{StrategyType: StrategyAllOrNothing},
		Logging:  LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
		Status:   StatusConfig{Enabled: true, Port: 8080},
	}
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the configuration-fatal class of spec §7: missing
// credentials or an invalid strategy type must surface and exit 1
// rather than proceed into an undefined runtime state.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: SYMBOL is required")
	}
	if !c.Vault.Enabled && (c.APIKey == "" || c.SecretKey == "") {
		return fmt.Errorf("config: API_KEY/SECRET_KEY required when vault is disabled")
	}
	switch c.Strategy.StrategyType {
	case StrategyAccumulator, StrategyCascadeMaster, StrategyAllOrNothing, StrategyOneOrMore:
	default:
		return fmt.Errorf("config: invalid STRATEGY_CONFIG.STRATEGY_TYPE %q", c.Strategy.StrategyType)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Symbol = getEnvOrDefault("SYMBOL", cfg.Symbol)
	cfg.Timeframe = getEnvOrDefault("TIMEFRAME", cfg.Timeframe)
	cfg.BaseURL = getEnvOrDefault("BASE_URL", cfg.BaseURL)
	cfg.Testnet = getEnvBoolOrDefault("TESTNET", cfg.Testnet)

	// Credentials are read from environment only as a fallback; when
	// Vault is enabled, internal/secrets.Load supersedes these at
	// startup (see main.go).
	cfg.APIKey = getEnvOrDefault("API_KEY", cfg.APIKey)
	cfg.SecretKey = getEnvOrDefault("SECRET_KEY", cfg.SecretKey)

	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.Path = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.Path)

	cfg.Reconnection.Enabled = getEnvBoolOrDefault("RECONNECTION_ENABLED", cfg.Reconnection.Enabled)
	cfg.Reconnection.MaxAttempts = getEnvIntOrDefault("RECONNECTION_MAX_ATTEMPTS", cfg.Reconnection.MaxAttempts)
	cfg.Reconnection.DelaySeconds = getEnvIntOrDefault("RECONNECTION_DELAY_SECONDS", cfg.Reconnection.DelaySeconds)
	cfg.Reconnection.TimeoutSeconds = getEnvIntOrDefault("RECONNECTION_TIMEOUT_SECONDS", cfg.Reconnection.TimeoutSeconds)

	cfg.Signal.RSIOnHA = getEnvBoolOrDefault("SIGNAL_RSI_ON_HA", cfg.Signal.RSIOnHA)
	cfg.Signal.VolumeValidation.Enabled = getEnvBoolOrDefault("VOLUME_VALIDATION_ENABLED", cfg.Signal.VolumeValidation.Enabled)
	cfg.Signal.VolumeValidation.LookbackCandles = getEnvIntOrDefault("VOLUME_VALIDATION_LOOKBACK_CANDLES", cfg.Signal.VolumeValidation.LookbackCandles)

	cfg.Trading.QuantityMode = QuantityMode(getEnvOrDefault("TRADING_QUANTITY_MODE", string(cfg.Trading.QuantityMode)))
	cfg.Trading.InitialQuantity = getEnvFloatOrDefault("TRADING_INITIAL_QUANTITY", cfg.Trading.InitialQuantity)
	cfg.Trading.BalancePercentage = getEnvFloatOrDefault("TRADING_BALANCE_PERCENTAGE", cfg.Trading.BalancePercentage)

	cfg.Hedging.Enabled = getEnvBoolOrDefault("HEDGING_ENABLED", cfg.Hedging.Enabled)
	cfg.Hedging.LookbackCandles = getEnvIntOrDefault("HEDGING_LOOKBACK_CANDLES", cfg.Hedging.LookbackCandles)
	cfg.Hedging.QuantityMultiplier = getEnvFloatOrDefault("HEDGING_QUANTITY_MULTIPLIER", cfg.Hedging.QuantityMultiplier)

	cfg.Cascade.Enabled = getEnvBoolOrDefault("CASCADE_ENABLED", cfg.Cascade.Enabled)
	cfg.Cascade.MaxOrders = getEnvIntOrDefault("CASCADE_MAX_ORDERS", cfg.Cascade.MaxOrders)
	cfg.Cascade.PollingIntervalSeconds = getEnvIntOrDefault("CASCADE_POLLING_INTERVAL_SECONDS", cfg.Cascade.PollingIntervalSeconds)
	cfg.Cascade.RetryAttempts = getEnvIntOrDefault("CASCADE_RETRY_ATTEMPTS", cfg.Cascade.RetryAttempts)
	cfg.Cascade.RetryDelaySeconds = getEnvIntOrDefault("CASCADE_RETRY_DELAY_SECONDS", cfg.Cascade.RetryDelaySeconds)

	cfg.TP.Enabled = getEnvBoolOrDefault("TP_ENABLED", cfg.TP.Enabled)
	cfg.TP.BaseMultiplier = getEnvFloatOrDefault("TP_BASE_MULTIPLIER", cfg.TP.BaseMultiplier)
	cfg.TP.PositionIncrement = getEnvFloatOrDefault("TP_POSITION_INCREMENT", cfg.TP.PositionIncrement)
	cfg.TP.PriceOffset = getEnvFloatOrDefault("TP_PRICE_OFFSET", cfg.TP.PriceOffset)

	cfg.Accumulator.Enabled = getEnvBoolOrDefault("ACCUMULATOR_ENABLED", cfg.Accumulator.Enabled)
	cfg.Accumulator.TPPercent = getEnvFloatOrDefault("ACCUMULATOR_TP_PERCENT", cfg.Accumulator.TPPercent)
	cfg.Accumulator.MaxAccumulations = getEnvIntOrDefault("ACCUMULATOR_MAX_ACCUMULATIONS", cfg.Accumulator.MaxAccumulations)
	cfg.Accumulator.PriceOffset = getEnvFloatOrDefault("ACCUMULATOR_PRICE_OFFSET", cfg.Accumulator.PriceOffset)

	cfg.AllOrNothing.Enabled = getEnvBoolOrDefault("ALL_OR_NOTHING_ENABLED", cfg.AllOrNothing.Enabled)
	cfg.AllOrNothing.SLLookbackCandles = getEnvIntOrDefault("ALL_OR_NOTHING_SL_LOOKBACK_CANDLES", cfg.AllOrNothing.SLLookbackCandles)
	cfg.AllOrNothing.SLOffsetPercent = getEnvFloatOrDefault("ALL_OR_NOTHING_SL_OFFSET_PERCENT", cfg.AllOrNothing.SLOffsetPercent)
	cfg.AllOrNothing.TPPercent = getEnvFloatOrDefault("ALL_OR_NOTHING_TP_PERCENT", cfg.AllOrNothing.TPPercent)
	cfg.AllOrNothing.PriceOffset = getEnvFloatOrDefault("ALL_OR_NOTHING_PRICE_OFFSET", cfg.AllOrNothing.PriceOffset)
	cfg.AllOrNothing.DynamicRSIExit.Enabled = getEnvBoolOrDefault("ALL_OR_NOTHING_DYNAMIC_RSI_EXIT_ENABLED", cfg.AllOrNothing.DynamicRSIExit.Enabled)
	cfg.AllOrNothing.TrailingStop.Enabled = getEnvBoolOrDefault("ALL_OR_NOTHING_TRAILING_STOP_ENABLED", cfg.AllOrNothing.TrailingStop.Enabled)
	cfg.AllOrNothing.TrailingStop.PriceTriggerPercent = getEnvFloatOrDefault("ALL_OR_NOTHING_TRAILING_STOP_PRICE_TRIGGER_PERCENT", cfg.AllOrNothing.TrailingStop.PriceTriggerPercent)
	cfg.AllOrNothing.TrailingStop.SLAdjustmentPercent = getEnvFloatOrDefault("ALL_OR_NOTHING_TRAILING_STOP_SL_ADJUSTMENT_PERCENT", cfg.AllOrNothing.TrailingStop.SLAdjustmentPercent)

	cfg.OneOrMore.Enabled = getEnvBoolOrDefault("ONE_OR_MORE_ENABLED", cfg.OneOrMore.Enabled)
	cfg.OneOrMore.SLLookbackCandles = getEnvIntOrDefault("ONE_OR_MORE_SL_LOOKBACK_CANDLES", cfg.OneOrMore.SLLookbackCandles)
	cfg.OneOrMore.SLOffsetPercent = getEnvFloatOrDefault("ONE_OR_MORE_SL_OFFSET_PERCENT", cfg.OneOrMore.SLOffsetPercent)
	cfg.OneOrMore.HedgeQuantityMultiplier = getEnvFloatOrDefault("ONE_OR_MORE_HEDGE_QUANTITY_MULTIPLIER", cfg.OneOrMore.HedgeQuantityMultiplier)
	cfg.OneOrMore.TPSafetyOffsetPercent = getEnvFloatOrDefault("ONE_OR_MORE_TP_SAFETY_OFFSET_PERCENT", cfg.OneOrMore.TPSafetyOffsetPercent)
	cfg.OneOrMore.MinDistancePercent = getEnvFloatOrDefault("ONE_OR_MORE_MIN_DISTANCE_PERCENT", cfg.OneOrMore.MinDistancePercent)
	cfg.OneOrMore.SmallDistanceOffsetPercent = getEnvFloatOrDefault("ONE_OR_MORE_SMALL_DISTANCE_OFFSET_PERCENT", cfg.OneOrMore.SmallDistanceOffsetPercent)
	cfg.OneOrMore.RRRatio = getEnvFloatOrDefault("ONE_OR_MORE_RR_RATIO", cfg.OneOrMore.RRRatio)
	cfg.OneOrMore.AsymmetricTP.Enabled = getEnvBoolOrDefault("ONE_OR_MORE_ASYMMETRIC_TP_ENABLED", cfg.OneOrMore.AsymmetricTP.Enabled)

	cfg.Strategy.StrategyType = StrategyType(getEnvOrDefault("STRATEGY_TYPE", string(cfg.Strategy.StrategyType)))

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)

	cfg.Status.Enabled = getEnvBoolOrDefault("STATUS_ENABLED", cfg.Status.Enabled)
	cfg.Status.Port = getEnvIntOrDefault("STATUS_PORT", cfg.Status.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
