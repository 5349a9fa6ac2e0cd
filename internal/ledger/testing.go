package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets a wallet balance directly on the
// in-memory engine, bypassing the transaction discipline.
func SeedBalance(m *InMemory, walletID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return
	}
	w.Balance = amount
	m.wallets[walletID] = w
}

// SeedPendingTransaction is a test helper that records a pending
// transaction on the in-memory engine, as left behind by a storage fault.
func SeedPendingTransaction(m *InMemory, senderID, receiverID string, amount decimal.Decimal, currency, reference string) Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := Transaction{
		ID:               uuid.New().String(),
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		Kind:             KindTransfer,
		Amount:           amount,
		Currency:         currency,
		Status:           StatusPending,
		Reference:        reference,
		CreatedAt:        time.Now().UTC(),
	}
	m.insertLocked(txn)
	return txn
}
