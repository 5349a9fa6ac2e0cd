package wallet

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested wallet does not exist.
	ErrNotFound = errors.New("wallet not found")

	// ErrOwnerHasWallet indicates the owner already has a wallet provisioned.
	ErrOwnerHasWallet = errors.New("owner already has a wallet")
)

// Store persists wallet identity, status and credential metadata. Balances
// are read through Get but never written here; the ledger engine is the only
// balance-mutating code path.
type Store interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByOwner(ctx context.Context, ownerID string) (Wallet, error)
	SetPIN(ctx context.Context, id string, hash []byte) error
	SetStatus(ctx context.Context, id string, status Status) error
}
