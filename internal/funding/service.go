package funding

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

// ErrProviderDeclined indicates the settlement provider rejected the
// authorization request.
var ErrProviderDeclined = errors.New("settlement provider declined")

// Service coordinates external deposits and withdrawals between the
// settlement provider and the ledger engine.
type Service struct {
	engine   ledger.Engine
	wallets  *wallet.Service
	gate     *authz.Gate
	provider Provider
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewService builds a funding service. A nil provider falls back to the
// static auto-approving connector.
func NewService(engine ledger.Engine, wallets *wallet.Service, gate *authz.Gate, provider Provider, emitter events.Emitter, logger *slog.Logger) *Service {
	if provider == nil {
		provider = StaticProvider{}
	}
	return &Service{engine: engine, wallets: wallets, gate: gate, provider: provider, emitter: emitter, logger: logger}
}

// DepositInput captures an inbound settlement into a wallet.
type DepositInput struct {
	WalletID   string
	Amount     decimal.Decimal
	Currency   string
	Reference  string
	MessageRef string
}

// WithdrawInput captures an outbound settlement from a wallet. The owner's
// PIN authorizes the debit.
type WithdrawInput struct {
	WalletID    string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	MessageRef  string
	PIN         string
	Destination string
}

// Result is the terminal outcome of a funding operation.
type Result struct {
	Transaction       ledger.Transaction
	Balance           decimal.Decimal
	ProviderReference string
	Replayed          bool
}

// Deposit credits a wallet from the external settlement rail. A repeated
// reference replays the recorded outcome without contacting the provider
// again.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (Result, error) {
	if input.Reference == "" {
		input.Reference = uuid.NewString()
	}

	if existing, err := s.engine.FindByReference(ctx, input.Reference); err == nil {
		return Result{Transaction: existing, Replayed: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return Result{}, err
	}

	if !input.Amount.IsPositive() {
		return Result{}, ledger.ErrInvalidAmount
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return Result{}, err
	}
	currency := input.Currency
	if currency == "" {
		currency = w.Currency
	}
	if w.Currency != currency {
		return Result{}, ledger.ErrCurrencyMismatch
	}

	decision, err := s.provider.AuthorizeDeposit(ctx, DepositAuthorization{
		WalletID: input.WalletID,
		Amount:   input.Amount,
		Currency: currency,
	})
	if err != nil {
		return Result{}, err
	}
	if !decision.Approved {
		failed := s.recordDenial(ctx, ledger.KindDeposit, "", input.WalletID, input.Amount, currency, input.Reference, decision.Reason)
		return Result{Transaction: failed, ProviderReference: decision.Reference}, ErrProviderDeclined
	}

	res, err := s.engine.Deposit(ctx, ledger.FundingInput{
		WalletID:   input.WalletID,
		Amount:     input.Amount,
		Currency:   currency,
		Reference:  input.Reference,
		MessageRef: input.MessageRef,
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return Result{Transaction: res.Transaction, Balance: res.Balance, ProviderReference: decision.Reference, Replayed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.emitSettlement(ctx, res.Transaction)
	s.emitBalance(ctx, input.WalletID, res.Balance)

	return Result{Transaction: res.Transaction, Balance: res.Balance, ProviderReference: decision.Reference}, nil
}

// Withdraw debits a wallet toward the external settlement rail. The gate
// verifies the owner's PIN before any funds move; denials are recorded as
// failed transactions so retries replay the same outcome.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (Result, error) {
	if input.Reference == "" {
		input.Reference = uuid.NewString()
	}

	if existing, err := s.engine.FindByReference(ctx, input.Reference); err == nil {
		return Result{Transaction: existing, Replayed: true}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return Result{}, err
	}

	if !input.Amount.IsPositive() {
		return Result{}, ledger.ErrInvalidAmount
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return Result{}, err
	}
	currency := input.Currency
	if currency == "" {
		currency = w.Currency
	}
	if w.Currency != currency {
		return Result{}, ledger.ErrCurrencyMismatch
	}

	if err := s.gate.Authorize(ctx, input.WalletID, input.PIN); err != nil {
		if isAuthzDenial(err) {
			failed := s.recordDenial(ctx, ledger.KindWithdrawal, input.WalletID, "", input.Amount, currency, input.Reference, err.Error())
			return Result{Transaction: failed}, err
		}
		return Result{}, err
	}

	decision, err := s.provider.AuthorizeWithdrawal(ctx, WithdrawalAuthorization{
		WalletID:    input.WalletID,
		Amount:      input.Amount,
		Currency:    currency,
		Destination: input.Destination,
	})
	if err != nil {
		return Result{}, err
	}
	if !decision.Approved {
		failed := s.recordDenial(ctx, ledger.KindWithdrawal, input.WalletID, "", input.Amount, currency, input.Reference, decision.Reason)
		return Result{Transaction: failed, ProviderReference: decision.Reference}, ErrProviderDeclined
	}

	res, err := s.engine.Withdraw(ctx, ledger.FundingInput{
		WalletID:   input.WalletID,
		Amount:     input.Amount,
		Currency:   currency,
		Reference:  input.Reference,
		MessageRef: input.MessageRef,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicateReference):
		return Result{Transaction: res.Transaction, Balance: res.Balance, ProviderReference: decision.Reference, Replayed: true}, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		failed := s.recordDenial(ctx, ledger.KindWithdrawal, input.WalletID, "", input.Amount, currency, input.Reference, err.Error())
		return Result{Transaction: failed, ProviderReference: decision.Reference}, err
	default:
		return Result{}, err
	}

	s.emitSettlement(ctx, res.Transaction)
	s.emitBalance(ctx, input.WalletID, res.Balance)

	return Result{Transaction: res.Transaction, Balance: res.Balance, ProviderReference: decision.Reference}, nil
}

func (s *Service) recordDenial(ctx context.Context, kind ledger.Kind, senderID, receiverID string, amount decimal.Decimal, currency, reference, reason string) ledger.Transaction {
	failed, err := s.engine.RecordFailure(ctx, ledger.FailureInput{
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		Amount:           amount,
		Currency:         currency,
		Kind:             kind,
		Reference:        reference,
		Reason:           reason,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		s.logger.Error("record failed funding transaction", "reference", reference, "error", err)
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
