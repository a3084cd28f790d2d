package config

import (
	"math"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	for _, tier := range Tiers {
		b, ok := cfg.Backends[tier]
		if !ok || b.Model == "" {
			t.Errorf("Tier %s not populated", tier)
		}
		if b.PricePerToken <= 0 {
			t.Errorf("Tier %s price not positive: %v", tier, b.PricePerToken)
		}
	}

	// 0.10 per 1M tokens
	if math.Abs(cfg.Backends[TierSimple].PricePerToken-0.10/1e6) > 1e-18 {
		t.Errorf("Expected per-token conversion, got %v", cfg.Backends[TierSimple].PricePerToken)
	}
	if math.Abs(cfg.BaselinePricePerToken-15.00/1e6) > 1e-18 {
		t.Errorf("Expected baseline per-token conversion, got %v", cfg.BaselinePricePerToken)
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for missing POSTGRES_DSN")
	}
}

func TestLoad_InvalidPrice(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MEDIUM_MODEL_COST", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for malformed price")
	}
}

func TestLoad_ZeroTierPrice(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIMPLE_MODEL_COST", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for zero tier price")
	}
}

func TestLoad_BaselineBelowTierPrice(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BASELINE_MODEL_COST", "2.00") // below complex tier's 3.00

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for baseline below tier price")
	}
	if !strings.Contains(err.Error(), "baseline") {
		t.Errorf("Expected baseline in error, got %v", err)
	}
}

func TestLoad_EmptyTierModel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMPLEX_MODEL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for empty tier model")
	}
}
