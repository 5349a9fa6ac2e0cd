package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider represents a connector to the external settlement rail that
// sources deposits and receives withdrawals (bank transfer, card processor,
// agent network). The ledger treats it as the external side of a
// null-sender or null-receiver transaction.
type Provider interface {
	AuthorizeDeposit(ctx context.Context, input DepositAuthorization) (Decision, error)
	AuthorizeWithdrawal(ctx context.Context, input WithdrawalAuthorization) (Decision, error)
}

// Decision captures the provider's response to an authorization request.
type Decision struct {
	Reference string
	Approved  bool
	Reason    string
}

// DepositAuthorization describes an inbound settlement to authorize.
type DepositAuthorization struct {
	WalletID string
	Amount   decimal.Decimal
	Currency string
}

// WithdrawalAuthorization describes an outbound settlement to authorize.
type WithdrawalAuthorization struct {
	WalletID    string
	Amount      decimal.Decimal
	Currency    string
	Destination string
}

// StaticProvider approves every request with a synthetic reference. Used in
// development and tests.
type StaticProvider struct{}

// AuthorizeDeposit approves the deposit.
func (StaticProvider) AuthorizeDeposit(_ context.Context, _ DepositAuthorization) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Approved: true}, nil
}

// AuthorizeWithdrawal approves the withdrawal.
func (StaticProvider) AuthorizeWithdrawal(_ context.Context, _ WithdrawalAuthorization) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Approved: true}, nil
}
