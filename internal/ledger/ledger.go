package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the sender wallet lacks available
	// balance to cover a requested movement.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount indicates a non-positive movement amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameWallet indicates a transfer naming the same wallet on both
	// sides.
	ErrSameWallet = errors.New("sender and receiver wallets must differ")

	// ErrDuplicateReference indicates the provided idempotency reference
	// already has a recorded outcome; the accompanying result is that
	// outcome and must be returned to the caller unchanged.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrNotFound indicates the requested transaction does not exist.
	ErrNotFound = errors.New("transaction not found")

	// ErrTerminalState indicates an attempt to transition a transaction out
	// of completed, failed or cancelled.
	ErrTerminalState = errors.New("transaction already in a terminal state")

	// ErrWalletNotFound indicates a referenced wallet row does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletNotActive indicates a wallet is suspended or locked.
	ErrWalletNotActive = errors.New("wallet is not active")

	// ErrCurrencyMismatch indicates the transaction currency differs from a
	// wallet's currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrUnavailable is surfaced after the bounded retry budget for
	// serialization conflicts is exhausted.
	ErrUnavailable = errors.New("ledger temporarily unavailable")
)

// Kind enumerates transaction kinds.
type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindRefund     Kind = "refund"
)

// Status enumerates transaction states. Pending is the only non-terminal
// state; a transaction transitions out of it exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Transaction is an immutable-once-terminal record of an attempted or
// completed movement of funds.
type Transaction struct {
	ID               string
	SenderWalletID   string // empty for external deposits
	ReceiverWalletID string // empty for external withdrawals
	Kind             Kind
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	Reference        string
	MessageRef       string
	FailureReason    string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// TransferInput captures a wallet-to-wallet posting request.
type TransferInput struct {
	SenderWalletID   string
	ReceiverWalletID string
	Amount           decimal.Decimal
	Currency         string
	Kind             Kind // transfer or refund
	Reference        string
	MessageRef       string
}

// TransferResult carries the recorded transaction and both post-mutation
// balances for event emission.
type TransferResult struct {
	Transaction     Transaction
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

// FundingInput captures an external deposit or withdrawal request.
type FundingInput struct {
	WalletID   string
	Amount     decimal.Decimal
	Currency   string
	Reference  string
	MessageRef string
}

// FundingResult carries the recorded transaction and the wallet's
// post-mutation balance.
type FundingResult struct {
	Transaction Transaction
	Balance     decimal.Decimal
}

// FailureInput records a terminal failed transaction so the idempotency
// reference is consumed and retries replay the same denial.
type FailureInput struct {
	SenderWalletID   string
	ReceiverWalletID string
	Amount           decimal.Decimal
	Currency         string
	Kind             Kind
	Reference        string
	Reason           string
}

// Engine is the single balance-mutating entry point of the system. Every
// implementation must guarantee that the funds check and the two balance
// writes of a movement are one indivisible unit, and that the transaction
// record and its idempotency reference commit in the same unit.
type Engine interface {
	Transfer(ctx context.Context, input TransferInput) (TransferResult, error)
	Deposit(ctx context.Context, input FundingInput) (FundingResult, error)
	Withdraw(ctx context.Context, input FundingInput) (FundingResult, error)
	RecordFailure(ctx context.Context, input FailureInput) (Transaction, error)
	Cancel(ctx context.Context, id string) (Transaction, error)
	Get(ctx context.Context, id string) (Transaction, error)
	FindByReference(ctx context.Context, reference string) (Transaction, error)
	List(ctx context.Context, walletID, cursor string, limit int) ([]Transaction, string, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// encodeCursor packs the keyset position of the last returned row into an
// opaque token.
func encodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UTC().UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}
