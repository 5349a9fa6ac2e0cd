package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kudi-pay/kudi_pay/internal/authz"
	"github.com/kudi-pay/kudi_pay/internal/events"
	"github.com/kudi-pay/kudi_pay/internal/ledger"
	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

var (
	// ErrSameWallet indicates sender and receiver are the same wallet.
	// Shared with the ledger engine, which enforces the same invariant.
	ErrSameWallet = ledger.ErrSameWallet

	// ErrNotOwner indicates the caller does not own the debited wallet.
	ErrNotOwner = errors.New("not owner of source wallet")

	// ErrNotRefundable indicates the referenced transaction cannot be
	// reversed with a refund.
	ErrNotRefundable = errors.New("transaction is not refundable")
)

// Service drives a transfer through validation, authorization and the
// ledger engine, and emits settlement events afterwards.
type Service struct {
	engine  ledger.Engine
	wallets *wallet.Service
	gate    *authz.Gate
	emitter events.Emitter
	logger  *slog.Logger
}

// NewService constructs the transfer orchestrator.
func NewService(engine ledger.Engine, wallets *wallet.Service, gate *authz.Gate, emitter events.Emitter, logger *slog.Logger) *Service {
	return &Service{engine: engine, wallets: wallets, gate: gate, emitter: emitter, logger: logger}
}

// TransferInput captures a transfer request. Kind defaults to transfer;
// Refund sets it to refund.
type TransferInput struct {
	SenderWalletID   string
	ReceiverWalletID string
	Amount           decimal.Decimal
	Currency         string
	Kind             ledger.Kind
	Reference        string
	PIN              string
	MessageRef       string
	RequestorOwnerID string
}

// Outcome is the terminal response for a movement: the recorded transaction
// plus post-mutation balances when funds moved.
type Outcome struct {
	Transaction     ledger.Transaction
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
	Replayed        bool
}

// Transfer executes the orchestration state machine. A repeated reference
// returns the already-recorded outcome with no side effect; authorization
// denials and insufficient funds are recorded as failed transactions so the
// reference is consumed; validation errors are rejected before any state
// change.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Outcome, error) {
	if input.Reference == "" {
		input.Reference = uuid.New().String()
	}
	if input.Kind == "" {
		input.Kind = ledger.KindTransfer
	}

	// Replay fast path: a recorded outcome is returned unchanged.
	if existing, err := s.engine.FindByReference(ctx, input.Reference); err == nil {
		return Outcome{Transaction: existing, Replayed: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return Outcome{}, err
	}

	if !input.Amount.IsPositive() {
		return Outcome{}, ledger.ErrInvalidAmount
	}
	if input.SenderWalletID == input.ReceiverWalletID {
		return Outcome{}, ErrSameWallet
	}

	sender, err := s.wallets.Get(ctx, input.SenderWalletID)
	if err != nil {
		return Outcome{}, err
	}
	if input.RequestorOwnerID != "" && sender.OwnerID != input.RequestorOwnerID {
		return Outcome{}, ErrNotOwner
	}
	receiver, err := s.wallets.Get(ctx, input.ReceiverWalletID)
	if err != nil {
		return Outcome{}, err
	}

	currency := input.Currency
	if currency == "" {
		currency = sender.Currency
	}
	if sender.Currency != currency || receiver.Currency != currency {
		return Outcome{}, ledger.ErrCurrencyMismatch
	}
	if receiver.Status != wallet.StatusActive {
		return Outcome{}, ledger.ErrWalletNotActive
	}

	if err := s.gate.Authorize(ctx, input.SenderWalletID, input.PIN); err != nil {
		if isAuthzDenial(err) {
			failed := s.recordDenial(ctx, input, currency, err)
			return Outcome{Transaction: failed}, err
		}
		return Outcome{}, err
	}

	res, err := s.engine.Transfer(ctx, ledger.TransferInput{
		SenderWalletID:   input.SenderWalletID,
		ReceiverWalletID: input.ReceiverWalletID,
		Amount:           input.Amount,
		Currency:         currency,
		Kind:             input.Kind,
		Reference:        input.Reference,
		MessageRef:       input.MessageRef,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicateReference):
		return Outcome{
			Transaction:     res.Transaction,
			SenderBalance:   res.SenderBalance,
			ReceiverBalance: res.ReceiverBalance,
			Replayed:        true,
		}, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		failed := s.recordDenial(ctx, input, currency, err)
		return Outcome{Transaction: failed}, err
	default:
		return Outcome{}, err
	}

	s.emitSettlement(ctx, res.Transaction)
	s.emitBalance(ctx, input.SenderWalletID, res.SenderBalance)
	s.emitBalance(ctx, input.ReceiverWalletID, res.ReceiverBalance)

	return Outcome{
		Transaction:     res.Transaction,
		SenderBalance:   res.SenderBalance,
		ReceiverBalance: res.ReceiverBalance,
	}, nil
}

// RefundInput captures a request to reverse a completed transfer.
type RefundInput struct {
	TransactionID    string
	PIN              string
	Reference        string
	RequestorOwnerID string
}

// Refund reverses a completed transfer with a new refund transaction from
// the original receiver back to the original sender. Funds are never
// reversed in place.
func (s *Service) Refund(ctx context.Context, input RefundInput) (Outcome, error) {
	original, err := s.engine.Get(ctx, input.TransactionID)
	if err != nil {
		return Outcome{}, err
	}
	if original.Kind != ledger.KindTransfer || original.Status != ledger.StatusCompleted {
		return Outcome{}, ErrNotRefundable
	}

	reference := input.Reference
	if reference == "" {
		reference = "refund:" + original.ID
	}

	return s.Transfer(ctx, TransferInput{
		SenderWalletID:   original.ReceiverWalletID,
		ReceiverWalletID: original.SenderWalletID,
		Amount:           original.Amount,
		Currency:         original.Currency,
		Kind:             ledger.KindRefund,
		Reference:        reference,
		PIN:              input.PIN,
		MessageRef:       original.MessageRef,
		RequestorOwnerID: input.RequestorOwnerID,
	})
}

// Cancel rejects a pending transaction. Terminal transactions are immutable.
func (s *Service) Cancel(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	txn, err := s.engine.Cancel(ctx, transactionID)
	if err != nil {
		return txn, err
	}
	s.emitSettlement(ctx, txn)
	return txn, nil
}

// GetTransaction returns a transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	return s.engine.Get(ctx, id)
}

// ListTransactions returns a wallet's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, walletID, cursor string, limit int) ([]ledger.Transaction, string, error) {
	if _, err := s.wallets.Get(ctx, walletID); err != nil {
		return nil, "", err
	}
	return s.engine.List(ctx, walletID, cursor, limit)
}

func (s *Service) recordDenial(ctx context.Context, input TransferInput, currency string, cause error) ledger.Transaction {
	failed, err := s.engine.RecordFailure(ctx, ledger.FailureInput{
		SenderWalletID:   input.SenderWalletID,
		ReceiverWalletID: input.ReceiverWalletID,
		Amount:           input.Amount,
		Currency:         currency,
		Kind:             input.Kind,
		Reference:        input.Reference,
		Reason:           cause.Error(),
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		s.logger.Error("record failed transaction", "reference", input.Reference, "error", err)
		return ledger.Transaction{}
	}
	s.emitSettlement(ctx, failed)
	return failed
}

func (s *Service) emitSettlement(ctx context.Context, txn ledger.Transaction) {
	if s.emitter == nil || txn.ID == "" {
		return
	}
	event := events.TransactionSettled{
		TransactionID: txn.ID,
		Status:        string(txn.Status),
		OccurredAt:    txn.CreatedAt,
	}
	if txn.CompletedAt != nil {
		event.OccurredAt = *txn.CompletedAt
	}
	if err := s.emitter.EmitTransactionSettled(ctx, event); err != nil {
		s.logger.Warn("emit transaction settled", "transaction_id", txn.ID, "error", err)
	}
}

func (s *Service) emitBalance(ctx context.Context, walletID string, balance decimal.Decimal) {
	if s.emitter == nil {
		return
	}
	event := events.BalanceChanged{WalletID: walletID, NewBalance: balance, OccurredAt: time.Now().UTC()}
	if err := s.emitter.EmitBalanceChanged(ctx, event); err != nil {
		s.logger.Warn("emit balance changed", "wallet_id", walletID, "error", err)
	}
}

func isAuthzDenial(err error) bool {
	return errors.Is(err, authz.ErrWalletNotActive) ||
		errors.Is(err, authz.ErrPinNotConfigured) ||
		errors.Is(err, authz.ErrInvalidPin)
}
