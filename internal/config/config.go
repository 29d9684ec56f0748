package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port              string
	PostgresURL       string
	DBSchema          string
	JWTSecret         string
	KafkaBrokers      []string
	OrderEventsTopic  string
	RedisAddr         string
	StatsCacheTTL     time.Duration
	ShippingFee       decimal.Decimal
	TaxRate           decimal.Decimal
	StrictTransitions bool
	NotifyWebhookURL  string
	WorkerGroupID     string
	OTLPEndpoint      string
	ServiceVersion    string
}

// Load reads an optional .env file and then the process environment.
func Load(logger *slog.Logger) Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug(".env not loaded", "error", err)
	}

	return Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		PostgresURL:       getEnvOrDefault("POSTGRES_URL", ""),
		DBSchema:          getEnvOrDefault("DB_SCHEMA", "shop"),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),
		KafkaBrokers:      getListEnv("KAFKA_BROKERS"),
		OrderEventsTopic:  getEnvOrDefault("ORDER_EVENTS_TOPIC", "order.events"),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", ""),
		StatsCacheTTL:     getDurationEnv("STATS_CACHE_TTL", 60, time.Second),
		ShippingFee:       getDecimalEnv("SHIPPING_FEE", decimal.NewFromInt(10)),
		TaxRate:           getDecimalEnv("TAX_RATE", decimal.NewFromFloat(0.10)),
		StrictTransitions: getBoolEnv("ORDER_STRICT_TRANSITIONS", false),
		NotifyWebhookURL:  getEnvOrDefault("NOTIFY_WEBHOOK_URL", ""),
		WorkerGroupID:     getEnvOrDefault("WORKER_GROUP_ID", "notification-worker"),
		OTLPEndpoint:      getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceVersion:    getEnvOrDefault("SERVICE_VERSION", "0.1.0"),
	}
}

// Validate checks the settings the API server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL environment variable is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.ShippingFee.IsNegative() {
		errs = append(errs, errors.New("SHIPPING_FEE must not be negative"))
	}
	if c.TaxRate.IsNegative() {
		errs = append(errs, errors.New("TAX_RATE must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
