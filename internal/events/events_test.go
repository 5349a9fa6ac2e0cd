package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kudi-pay/kudi_pay/internal/logging"
)

func TestLogEmitterIsNilSafe(t *testing.T) {
	var e *LogEmitter
	if err := e.EmitBalanceChanged(context.Background(), BalanceChanged{}); err != nil {
		t.Fatalf("nil emitter: %v", err)
	}

	e = NewLogEmitter(logging.Discard())
	event := BalanceChanged{WalletID: "w1", NewBalance: decimal.RequireFromString("10.00"), OccurredAt: time.Now()}
	if err := e.EmitBalanceChanged(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestRedisEmitterPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	emitter := NewRedisEmitter(cache)
	ctx := context.Background()

	if err := emitter.EmitBalanceChanged(ctx, BalanceChanged{
		WalletID:   "w1",
		NewBalance: decimal.RequireFromString("42.00"),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("emit balance: %v", err)
	}

	if err := emitter.EmitTransactionSettled(ctx, TransactionSettled{
		TransactionID: "t1",
		Status:        "completed",
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("emit settlement: %v", err)
	}
}
