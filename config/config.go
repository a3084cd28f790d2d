package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Tier is one of the three fixed difficulty classes a prompt can land in.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Tiers lists the routable tiers in evaluation order.
var Tiers = []Tier{TierSimple, TierMedium, TierComplex}

// BackendConfig binds a tier to a model identifier and its per-token price in USD.
type BackendConfig struct {
	Model         string
	PricePerToken float64
}

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Backend credentials
	OpenRouterAPIKey string
	TogetherAPIKey   string

	// Routing table: one backend per tier, always fully populated after Load.
	Backends map[Tier]BackendConfig

	// BaselinePricePerToken is the per-token price of the expensive reference
	// model used only for savings computation, never for routing.
	BaselinePricePerToken float64

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000
}

// Prices in env vars are USD per 1M tokens, the unit providers publish.
const tokensPerMillion = 1_000_000

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		TogetherAPIKey:       os.Getenv("TOGETHER_API_KEY"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	simplePrice, err := getPrice("SIMPLE_MODEL_COST", "0.10")
	if err != nil {
		return nil, err
	}
	mediumPrice, err := getPrice("MEDIUM_MODEL_COST", "1.00")
	if err != nil {
		return nil, err
	}
	complexPrice, err := getPrice("COMPLEX_MODEL_COST", "3.00")
	if err != nil {
		return nil, err
	}
	baselinePrice, err := getPrice("BASELINE_MODEL_COST", "15.00")
	if err != nil {
		return nil, err
	}

	cfg.Backends = map[Tier]BackendConfig{
		TierSimple:  {Model: getEnv("SIMPLE_MODEL", "google/gemini-flash-1.5"), PricePerToken: simplePrice},
		TierMedium:  {Model: getEnv("MEDIUM_MODEL", "anthropic/claude-3-haiku"), PricePerToken: mediumPrice},
		TierComplex: {Model: getEnv("COMPLEX_MODEL", "anthropic/claude-3.5-sonnet"), PricePerToken: complexPrice},
	}
	cfg.BaselinePricePerToken = baselinePrice

	// Rate Limiting Default
	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces the startup contract: a broken routing table refuses to
// serve rather than failing per-request.
func (c *Config) validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.BaselinePricePerToken <= 0 {
		return fmt.Errorf("BASELINE_MODEL_COST must be > 0")
	}
	for _, tier := range Tiers {
		b, ok := c.Backends[tier]
		if !ok || b.Model == "" {
			return fmt.Errorf("no model configured for tier %q", tier)
		}
		if b.PricePerToken <= 0 {
			return fmt.Errorf("invalid price for tier %q model %q: must be > 0", tier, b.Model)
		}
		if c.BaselinePricePerToken < b.PricePerToken {
			return fmt.Errorf("baseline price %.8f is below tier %q price %.8f: savings would be negative",
				c.BaselinePricePerToken, tier, b.PricePerToken)
		}
	}

	return nil
}

// getPrice reads a USD-per-1M-tokens env var and converts it to USD per token.
func getPrice(key, fallback string) (float64, error) {
	raw := getEnv(key, fallback)
	perMillion, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return perMillion / tokensPerMillion, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
