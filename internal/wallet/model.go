package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the lifecycle states of a wallet. Wallets are never
// deleted; they only transition between these states.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusLocked    Status = "locked"
)

// Valid reports whether s is a known wallet status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusLocked:
		return true
	}
	return false
}

// Wallet represents a single owner's monetary balance in one currency.
// Balance is only ever mutated through the ledger engine.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   decimal.Decimal
	Currency  string
	Status    Status
	PINHash   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPIN reports whether the owner has configured a transaction PIN.
func (w Wallet) HasPIN() bool {
	return len(w.PINHash) > 0
}
