package config

import "testing"

func TestValidateRequiresCredentialsWithoutVault(t *testing.T) {
	cfg := defaults()
	cfg.Strategy.StrategyType = StrategyAllOrNothing
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when credentials and vault are both absent")
	}

	cfg.APIKey = "k"
	cfg.SecretKey = "s"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsUnknownStrategyType(t *testing.T) {
	cfg := defaults()
	cfg.APIKey, cfg.SecretKey = "k", "s"
	cfg.Strategy.StrategyType = "NOT_A_STRATEGY"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown strategy type")
	}
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("SYMBOL", "ETHUSDT")
	cfg := defaults()
	applyEnvOverrides(cfg)
	if cfg.Symbol != "ETHUSDT" {
		t.Errorf("expected env override to win, got %s", cfg.Symbol)
	}
}
