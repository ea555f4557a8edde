package config

import (
	"os"
	"strconv"
	"time"
)

// Config is read once in main and passed into constructors so tests can
// inject their own values instead of poking at the environment.
type Config struct {
	Port     string
	Currency string

	StripeBaseURL       string
	StripeSecretKey     string
	StripeWebhookSecret string

	ShopifyBaseURL string
	ShopifyToken   string

	RequireCustomer     bool
	RequiredCustomerTag string
	GateCacheTTL        time.Duration

	DatabaseDSN string
	RedisAddr   string
	KafkaBroker string
}

func Load() *Config {
	ttl := 5 * time.Minute
	if v := os.Getenv("GATE_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Second
		}
	}

	return &Config{
		Port:     getEnv("PORT", "3000"),
		Currency: getEnv("CURRENCY", "cad"),

		StripeBaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		ShopifyBaseURL: os.Getenv("SHOPIFY_BASE_URL"),
		ShopifyToken:   os.Getenv("SHOPIFY_ACCESS_TOKEN"),

		RequireCustomer:     os.Getenv("REQUIRE_CUSTOMER") == "true",
		RequiredCustomerTag: os.Getenv("REQUIRED_CUSTOMER_TAG"),
		GateCacheTTL:        ttl,

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		KafkaBroker: os.Getenv("KAFKA_BROKER"),
	}
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
