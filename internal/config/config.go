package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// CourierCredentials groups the per-provider secrets that gate IsConfigured.
type CourierCredentials struct {
	CdekAccount        string
	CdekSecurePassword string
	CdekBaseURL        string
	BoxberryToken      string
	BoxberryBaseURL    string
	RussianPostToken   string
	RussianPostAuthKey string
	RussianPostBaseURL string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	Couriers CourierCredentials

	QuoteCacheTTL      time.Duration
	PvzCacheTTL        time.Duration
	PvzCacheMaxEntries int
	PvzListCacheTTL    time.Duration

	OutboundTimeout    time.Duration
	RetryMaxAttempts   int
	RetryBase          time.Duration
	RetryJitterPercent float64
	CircuitMinReq      int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	IdempotencyTTL           time.Duration
	ShippingWebhookReplayTTL time.Duration
	OrderCallbackURL         string

	RateLimitWindow time.Duration
	RateLimitMax    int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Couriers: CourierCredentials{
			CdekAccount:        strings.TrimSpace(k.String("CDEK_ACCOUNT")),
			CdekSecurePassword: strings.TrimSpace(k.String("CDEK_SECURE_PASSWORD")),
			CdekBaseURL:        strings.TrimSpace(k.String("CDEK_BASE_URL")),
			BoxberryToken:      strings.TrimSpace(k.String("BOXBERRY_TOKEN")),
			BoxberryBaseURL:    strings.TrimSpace(k.String("BOXBERRY_BASE_URL")),
			RussianPostToken:   strings.TrimSpace(k.String("RUSSIANPOST_TOKEN")),
			RussianPostAuthKey: strings.TrimSpace(k.String("RUSSIANPOST_AUTH_KEY")),
			RussianPostBaseURL: strings.TrimSpace(k.String("RUSSIANPOST_BASE_URL")),
		},

		QuoteCacheTTL:      parseDuration(k.String("SHIPPING_QUOTE_CACHE_TTL"), "15m"),
		PvzCacheTTL:        parseDuration(k.String("SHIPPING_PVZ_CACHE_TTL"), "24h"),
		PvzCacheMaxEntries: intOrDefault(k.Int("SHIPPING_PVZ_CACHE_MAX"), 1000),
		PvzListCacheTTL:    parseDuration(k.String("SHIPPING_PVZ_LIST_CACHE_TTL"), "24h"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:   intOrDefault(k.Int("RETRY_MAX_ATTEMPTS"), 2),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryJitterPercent: floatOrDefault(k.Float64("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinReq:      intOrDefault(k.Int("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRate: floatOrDefault(k.Float64("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		IdempotencyTTL:           parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ShippingWebhookReplayTTL: parseDuration(k.String("SHIPPING_WEBHOOK_REPLAY_TTL"), "10m"),
		OrderCallbackURL:         strings.TrimSpace(k.String("ORDER_CALLBACK_URL")),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    intOrDefault(k.Int("RATE_LIMIT_MAX"), 60),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func floatOrDefault(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
}
