package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kudi-pay/kudi_pay/internal/authz"
	"github.com/kudi-pay/kudi_pay/internal/ledger"
	"github.com/kudi-pay/kudi_pay/internal/logging"
	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

type decliningProvider struct {
	reason string
}

func (p decliningProvider) AuthorizeDeposit(_ context.Context, _ DepositAuthorization) (Decision, error) {
	return Decision{Reference: "ext-1", Reason: p.reason}, nil
}

func (p decliningProvider) AuthorizeWithdrawal(_ context.Context, _ WithdrawalAuthorization) (Decision, error) {
	return Decision{Reference: "ext-1", Reason: p.reason}, nil
}

func setup(t *testing.T, provider Provider) (*Service, *ledger.InMemory, *wallet.Service) {
	t.Helper()
	engine := ledger.NewInMemory()
	store := engine.WalletStore()
	wallets := wallet.NewService(store, "NGN")
	gate := authz.NewGate(store, authz.NewMemoryLimiter(), 5, logging.Discard())
	service := NewService(engine, wallets, gate, provider, nil, logging.Discard())
	return service, engine, wallets
}

func newWallet(t *testing.T, wallets *wallet.Service, pin string) wallet.Wallet {
	t.Helper()
	w, err := wallets.Create(context.Background(), wallet.CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if pin != "" {
		if _, err := wallets.SetPIN(context.Background(), w.ID, pin, pin); err != nil {
			t.Fatalf("set pin: %v", err)
		}
	}
	return w
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositCreditsWallet(t *testing.T) {
	service, _, wallets := setup(t, nil)
	w := newWallet(t, wallets, "")

	result, err := service.Deposit(context.Background(), DepositInput{
		WalletID:  w.ID,
		Amount:    amount("250.00"),
		Reference: "d1",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if result.Transaction.Kind != ledger.KindDeposit || result.Transaction.Status != ledger.StatusCompleted {
		t.Fatalf("unexpected transaction %s/%s", result.Transaction.Kind, result.Transaction.Status)
	}
	if !result.Balance.Equal(amount("250.00")) {
		t.Fatalf("balance = %s", result.Balance)
	}
	if result.ProviderReference == "" {
		t.Fatal("missing provider reference")
	}
}

func TestDepositReplaySameReference(t *testing.T) {
	service, _, wallets := setup(t, nil)
	w := newWallet(t, wallets, "")

	input := DepositInput{WalletID: w.ID, Amount: amount("100.00"), Reference: "d2"}
	first, err := service.Deposit(context.Background(), input)
	if err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	second, err := service.Deposit(context.Background(), input)
	if err != nil {
		t.Fatalf("replayed deposit: %v", err)
	}
	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected replay of %s, got %s replayed=%v",
			first.Transaction.ID, second.Transaction.ID, second.Replayed)
	}

	got, err := wallets.Get(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !got.Balance.Equal(amount("100.00")) {
		t.Fatalf("wallet credited twice, balance %s", got.Balance)
	}
}

func TestWithdrawRequiresPin(t *testing.T) {
	service, engine, wallets := setup(t, nil)
	w := newWallet(t, wallets, "2468")
	ledger.SeedBalance(engine, w.ID, amount("80.00"))

	result, err := service.Withdraw(context.Background(), WithdrawInput{
		WalletID:  w.ID,
		Amount:    amount("30.00"),
		Reference: "wd1",
		PIN:       "0000",
	})
	if !errors.Is(err, authz.ErrInvalidPin) {
		t.Fatalf("expected ErrInvalidPin, got %v", err)
	}
	if result.Transaction.Status != ledger.StatusFailed {
		t.Fatalf("expected recorded failure, got %s", result.Transaction.Status)
	}

	ok, err := service.Withdraw(context.Background(), WithdrawInput{
		WalletID: w.ID,
		Amount:   amount("30.00"),
		PIN:      "2468",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !ok.Balance.Equal(amount("50.00")) {
		t.Fatalf("balance = %s", ok.Balance)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	service, engine, wallets := setup(t, nil)
	w := newWallet(t, wallets, "2468")
	ledger.SeedBalance(engine, w.ID, amount("10.00"))

	result, err := service.Withdraw(context.Background(), WithdrawInput{
		WalletID:  w.ID,
		Amount:    amount("99.00"),
		Reference: "wd2",
		PIN:       "2468",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if result.Transaction.Status != ledger.StatusFailed {
		t.Fatalf("expected recorded failure, got %s", result.Transaction.Status)
	}
}

func TestProviderDeclineRecordsFailure(t *testing.T) {
	service, _, wallets := setup(t, decliningProvider{reason: "compliance hold"})
	w := newWallet(t, wallets, "")

	result, err := service.Deposit(context.Background(), DepositInput{
		WalletID:  w.ID,
		Amount:    amount("40.00"),
		Reference: "d3",
	})
	if !errors.Is(err, ErrProviderDeclined) {
		t.Fatalf("expected ErrProviderDeclined, got %v", err)
	}
	if result.Transaction.Status != ledger.StatusFailed {
		t.Fatalf("expected recorded failure, got %s", result.Transaction.Status)
	}
	if result.Transaction.FailureReason != "compliance hold" {
		t.Fatalf("failure reason = %q", result.Transaction.FailureReason)
	}

	got, err := wallets.Get(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !got.Balance.IsZero() {
		t.Fatalf("declined deposit moved funds, balance %s", got.Balance)
	}
}

func TestDepositCurrencyMismatch(t *testing.T) {
	service, _, wallets := setup(t, nil)
	w := newWallet(t, wallets, "")

	_, err := service.Deposit(context.Background(), DepositInput{
		WalletID: w.ID,
		Amount:   amount("5.00"),
		Currency: "USD",
	})
	if !errors.Is(err, ledger.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}
