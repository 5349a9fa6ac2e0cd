package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kudipay")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DefaultCurrency != "NGN" {
		t.Fatalf("expected default currency NGN, got %s", cfg.DefaultCurrency)
	}
	if cfg.PinMaxAttempts != 5 {
		t.Fatalf("expected 5 pin attempts, got %d", cfg.PinMaxAttempts)
	}
	if cfg.TransferMaxRetries != 3 {
		t.Fatalf("expected 3 transfer retries, got %d", cfg.TransferMaxRetries)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kudipay")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PIN_MAX_ATTEMPTS", "3")
	t.Setenv("PIN_ATTEMPT_WINDOW", "5m")
	t.Setenv("TRANSFER_MAX_RETRIES", "10")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.PinMaxAttempts != 3 {
		t.Fatalf("expected 3 pin attempts, got %d", cfg.PinMaxAttempts)
	}
	if cfg.PinAttemptWindow != 5*time.Minute {
		t.Fatalf("unexpected pin window %s", cfg.PinAttemptWindow)
	}
	if cfg.TransferMaxRetries != 10 {
		t.Fatalf("expected 10 transfer retries, got %d", cfg.TransferMaxRetries)
	}
	if cfg.ShutdownPeriod != 30*time.Second {
		t.Fatalf("unexpected shutdown period %s", cfg.ShutdownPeriod)
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL missing")
	}
}

func TestLoadRejectsBadCurrency(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kudipay")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DEFAULT_CURRENCY", "NAIRA")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non 3-letter currency")
	}
}
