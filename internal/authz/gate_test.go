package authz

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kudi-pay/kudi_pay/internal/ledger"
	"github.com/kudi-pay/kudi_pay/internal/logging"
	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

func setupGate(t *testing.T, limiter AttemptLimiter, maxAttempts int) (*Gate, *wallet.Service, wallet.Wallet) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewInMemory().WalletStore()
	svc := wallet.NewService(store, "NGN")

	w, err := svc.Create(ctx, wallet.CreateInput{OwnerID: "7f8b0a68-7d06-4bc2-a6aa-1f0955a4efac"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	gate := NewGate(store, limiter, maxAttempts, logging.Discard())
	return gate, svc, w
}

func TestAuthorizeChecksInOrder(t *testing.T) {
	ctx := context.Background()
	gate, svc, w := setupGate(t, NewMemoryLimiter(), 5)

	if err := gate.Authorize(ctx, "1c1de5a6-96c9-4f3f-8be3-1cbbaa52a3f3", "1234"); err != wallet.ErrNotFound {
		t.Fatalf("expected wallet not found, got %v", err)
	}

	// No PIN configured yet.
	if err := gate.Authorize(ctx, w.ID, "1234"); err != ErrPinNotConfigured {
		t.Fatalf("expected pin not configured, got %v", err)
	}

	if _, err := svc.SetPIN(ctx, w.ID, "4921", "4921"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	if err := gate.Authorize(ctx, w.ID, "0000"); err != ErrInvalidPin {
		t.Fatalf("expected invalid pin, got %v", err)
	}

	if err := gate.Authorize(ctx, w.ID, "4921"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if _, err := svc.SetStatus(ctx, w.ID, wallet.StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := gate.Authorize(ctx, w.ID, "4921"); err != ErrWalletNotActive {
		t.Fatalf("expected wallet not active, got %v", err)
	}
}

func TestAuthorizeLocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	gate, svc, w := setupGate(t, NewMemoryLimiter(), 3)

	if _, err := svc.SetPIN(ctx, w.ID, "4921", "4921"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := gate.Authorize(ctx, w.ID, "9999"); err != ErrInvalidPin {
			t.Fatalf("attempt %d: expected invalid pin, got %v", i, err)
		}
	}

	locked, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if locked.Status != wallet.StatusLocked {
		t.Fatalf("expected wallet locked, got %s", locked.Status)
	}

	// Correct PIN no longer helps; the wallet needs an out-of-band unlock.
	if err := gate.Authorize(ctx, w.ID, "4921"); err != ErrWalletNotActive {
		t.Fatalf("expected wallet not active, got %v", err)
	}
}

func TestAuthorizeSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter()
	gate, svc, w := setupGate(t, limiter, 3)

	if _, err := svc.SetPIN(ctx, w.ID, "4921", "4921"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := gate.Authorize(ctx, w.ID, "9999"); err != ErrInvalidPin {
			t.Fatalf("expected invalid pin, got %v", err)
		}
	}
	if err := gate.Authorize(ctx, w.ID, "4921"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// Counter was reset: two more failures must not lock.
	for i := 0; i < 2; i++ {
		if err := gate.Authorize(ctx, w.ID, "9999"); err != ErrInvalidPin {
			t.Fatalf("expected invalid pin, got %v", err)
		}
	}
	current, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if current.Status != wallet.StatusActive {
		t.Fatalf("expected wallet still active, got %s", current.Status)
	}
}

func TestRedisLimiterCountsWithinWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	limiter := NewRedisLimiter(cache, time.Minute)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := limiter.Fail(ctx, "w1")
		if err != nil {
			t.Fatalf("fail: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	if err := limiter.Reset(ctx, "w1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := limiter.Fail(ctx, "w1")
	if err != nil {
		t.Fatalf("fail after reset: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected count 1 after reset, got %d", got)
	}

	// Cool-down expiry clears the counter.
	mr.FastForward(2 * time.Minute)
	got, err = limiter.Fail(ctx, "w1")
	if err != nil {
		t.Fatalf("fail after expiry: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected count 1 after window expiry, got %d", got)
	}
}
