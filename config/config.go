package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/resilience"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	OrderServiceURL     string
	PromotionServiceURL string
	WalletServiceURL    string

	StripeSecretKey  string
	StripeWebhookKey string
	StripeAPIURL     string

	CheckoutSNSTopicARN    string // SNS topic ARN for checkout notifications
	ReconciliationQueueURL string // SQS queue URL for orders needing reconciliation
	MetricsEnabled         bool
	MetricsNamespace       string

	Currency            string
	ConfirmationBaseURL string
	PendingOrderTTL     time.Duration
	ReconcileInterval   time.Duration
	AttemptLockTTL      time.Duration
	PlaceOrderPerMinute int
	PlaceOrderBurst     int

	RetryMaxAttempts       int
	RetryInitialBackoff    time.Duration
	RetryBackoffMultiplier float64
	RetryMaxBackoff        time.Duration
	RetryAttemptTimeout    time.Duration
	ConfirmAttemptTimeout  time.Duration
}

// SecretSource resolves a JSON key/value secret.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from the environment, a local .env file and,
// when AWS_USE_SECRETS=true, AWS Secrets Manager.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:        getEnv("PORT", "8091"),
		Environment: getEnv("ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Europe/Madrid"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		OrderServiceURL:     getEnv("ORDER_SERVICE_URL", "http://order-service:8083"),
		PromotionServiceURL: getEnv("PROMOTION_SERVICE_URL", "http://promotion-service:8089"),
		WalletServiceURL:    getEnv("WALLET_SERVICE_URL", "http://wallet-service:8092"),

		StripeSecretKey:  os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:     os.Getenv("STRIPE_API_URL"),

		CheckoutSNSTopicARN:    os.Getenv("CHECKOUT_SNS_TOPIC_ARN"),
		ReconciliationQueueURL: os.Getenv("RECONCILIATION_QUEUE_URL"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsNamespace:       getEnv("METRICS_NAMESPACE", "ECommerce/Checkout"),

		Currency:            strings.ToUpper(getEnv("CURRENCY", "EUR")),
		ConfirmationBaseURL: getEnv("CONFIRMATION_BASE_URL", "http://localhost:3000/orders/confirmation"),
		PendingOrderTTL:     p.duration("PENDING_ORDER_TTL", 30*time.Minute),
		ReconcileInterval:   p.duration("RECONCILE_INTERVAL", time.Minute),
		AttemptLockTTL:      p.duration("ATTEMPT_LOCK_TTL", 2*time.Minute),
		PlaceOrderPerMinute: p.integer("PLACE_ORDER_RATE_PER_MIN", 10),
		PlaceOrderBurst:     p.integer("PLACE_ORDER_BURST", 3),

		RetryMaxAttempts:       p.integer("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff:    p.duration("RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		RetryBackoffMultiplier: p.float("RETRY_BACKOFF_MULTIPLIER", 2),
		RetryMaxBackoff:        p.duration("RETRY_MAX_BACKOFF", 2*time.Second),
		RetryAttemptTimeout:    p.duration("RETRY_ATTEMPT_TIMEOUT", 5*time.Second),
		ConfirmAttemptTimeout:  p.duration("CONFIRM_ATTEMPT_TIMEOUT", 15*time.Second),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// applySecrets overrides database and Stripe credentials from the secret store.
// Missing or malformed secrets leave the environment values in place.
func applySecrets(ctx context.Context, cfg *Config, sm SecretSource) {
	if m, err := sm.GetSecretMap(ctx, "checkout/DB_CREDENTIALS"); err == nil {
		override(&cfg.PostgresUser, m["POSTGRES_USER"])
		override(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&cfg.PostgresDB, m["POSTGRES_DB"])
		override(&cfg.PostgresHost, m["POSTGRES_HOST"])
		override(&cfg.PostgresPort, m["POSTGRES_PORT"])
	}
	if m, err := sm.GetSecretMap(ctx, "checkout/STRIPE"); err == nil {
		override(&cfg.StripeSecretKey, m["STRIPE_API_KEY"])
		override(&cfg.StripeWebhookKey, m["STRIPE_WEBHOOK_SECRET"])
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.StripeSecretKey == "" || c.StripeWebhookKey == "" {
		return fmt.Errorf("STRIPE_API_KEY and STRIPE_WEBHOOK_SECRET are required")
	}
	if c.OrderServiceURL == "" || c.PromotionServiceURL == "" || c.WalletServiceURL == "" {
		return fmt.Errorf("upstream service URLs are required")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1")
	}
	if c.PendingOrderTTL <= 0 || c.AttemptLockTTL <= 0 || c.ReconcileInterval <= 0 {
		return fmt.Errorf("PENDING_ORDER_TTL, ATTEMPT_LOCK_TTL and RECONCILE_INTERVAL must be positive")
	}
	return nil
}

// Retry returns the resilience policy described by the retry settings.
func (c *Config) Retry() resilience.Config {
	r := resilience.DefaultConfig()
	r.MaxAttempts = c.RetryMaxAttempts
	r.InitialBackoff = c.RetryInitialBackoff
	r.BackoffMultiplier = c.RetryBackoffMultiplier
	r.MaxBackoff = c.RetryMaxBackoff
	r.PerAttemptTimeout = c.RetryAttemptTimeout
	return r
}

// PostgresDSN builds the gorm postgres DSN.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
