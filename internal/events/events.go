package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	// BalanceChannel carries balance-changed events for the externally
	// owned push/websocket fan-out.
	BalanceChannel = "events:balance"
	// TransactionChannel carries transaction-settled events.
	TransactionChannel = "events:transaction"
)

// BalanceChanged announces a wallet's new balance after a movement.
type BalanceChanged struct {
	WalletID   string          `json:"wallet_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// TransactionSettled announces a transaction reaching a terminal state.
type TransactionSettled struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Emitter delivers ledger events to downstream consumers. Emission is
// best-effort and happens after the movement has committed; a delivery
// failure never rolls money back.
type Emitter interface {
	EmitBalanceChanged(ctx context.Context, event BalanceChanged) error
	EmitTransactionSettled(ctx context.Context, event TransactionSettled) error
}

// LogEmitter writes events to the structured logger. Used in development
// and as the fallback when no broker is configured.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a logging emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// EmitBalanceChanged writes the event to the logger.
func (e *LogEmitter) EmitBalanceChanged(_ context.Context, event BalanceChanged) error {
	if e == nil || e.logger == nil {
		return nil
	}
	e.logger.Info("balance changed", "wallet_id", event.WalletID, "new_balance", event.NewBalance.String())
	return nil
}

// EmitTransactionSettled writes the event to the logger.
func (e *LogEmitter) EmitTransactionSettled(_ context.Context, event TransactionSettled) error {
	if e == nil || e.logger == nil {
		return nil
	}
	e.logger.Info("transaction settled", "transaction_id", event.TransactionID, "status", event.Status)
	return nil
}

// RedisEmitter publishes events to Redis pub/sub channels consumed by the
// notification layer.
type RedisEmitter struct {
	cache *redis.Client
}

// NewRedisEmitter constructs a Redis pub/sub emitter.
func NewRedisEmitter(cache *redis.Client) *RedisEmitter {
	return &RedisEmitter{cache: cache}
}

// EmitBalanceChanged publishes the event on the balance channel.
func (e *RedisEmitter) EmitBalanceChanged(ctx context.Context, event BalanceChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.cache.Publish(ctx, BalanceChannel, payload).Err()
}

// EmitTransactionSettled publishes the event on the transaction channel.
func (e *RedisEmitter) EmitTransactionSettled(ctx context.Context, event TransactionSettled) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.cache.Publish(ctx, TransactionChannel, payload).Err()
}
