package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		for _, key := range []string{"PORT", "KAFKA_BROKERS", "SHIPPING_FEE", "TAX_RATE", "STATS_CACHE_TTL", "ORDER_STRICT_TRANSITIONS"} {
			t.Setenv(key, "")
		}

		cfg := Load(slog.New(slog.NewTextHandler(io.Discard, nil)))

		if cfg.Port != "8080" {
			t.Errorf("expected port 8080, got %s", cfg.Port)
		}
		if cfg.KafkaBrokers != nil {
			t.Errorf("expected no brokers, got %v", cfg.KafkaBrokers)
		}
		if !cfg.ShippingFee.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected shipping fee 10, got %s", cfg.ShippingFee)
		}
		if !cfg.TaxRate.Equal(decimal.RequireFromString("0.1")) {
			t.Errorf("expected tax rate 0.1, got %s", cfg.TaxRate)
		}
		if cfg.StatsCacheTTL != time.Minute {
			t.Errorf("expected stats ttl 1m, got %s", cfg.StatsCacheTTL)
		}
		if cfg.StrictTransitions {
			t.Error("expected permissive transitions by default")
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("SHIPPING_FEE", "4.99")
		t.Setenv("STATS_CACHE_TTL", "5")
		t.Setenv("ORDER_STRICT_TRANSITIONS", "true")

		cfg := Load(slog.New(slog.NewTextHandler(io.Discard, nil)))

		if cfg.Port != "9000" {
			t.Errorf("expected port 9000, got %s", cfg.Port)
		}
		if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
			t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
		}
		if !cfg.ShippingFee.Equal(decimal.RequireFromString("4.99")) {
			t.Errorf("expected shipping fee 4.99, got %s", cfg.ShippingFee)
		}
		if cfg.StatsCacheTTL != 5*time.Second {
			t.Errorf("expected stats ttl 5s, got %s", cfg.StatsCacheTTL)
		}
		if !cfg.StrictTransitions {
			t.Error("expected strict transitions")
		}
	})

	t.Run("ignores malformed values", func(t *testing.T) {
		t.Setenv("SHIPPING_FEE", "ten")
		t.Setenv("STATS_CACHE_TTL", "-3")

		cfg := Load(slog.New(slog.NewTextHandler(io.Discard, nil)))

		if !cfg.ShippingFee.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected default shipping fee, got %s", cfg.ShippingFee)
		}
		if cfg.StatsCacheTTL != time.Minute {
			t.Errorf("expected default ttl, got %s", cfg.StatsCacheTTL)
		}
	})
}

func TestValidate(t *testing.T) {
	cfg := Config{ShippingFee: decimal.NewFromInt(10), TaxRate: decimal.RequireFromString("0.1")}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing POSTGRES_URL and JWT_SECRET")
	}

	cfg.PostgresURL = "postgres://localhost/shop"
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.ShippingFee = decimal.NewFromInt(-1)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative shipping fee")
	}
}
