package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

// InMemory is a concurrency-safe in-memory ledger engine that doubles as a
// wallet.Store, so service tests run against a single consistent state.
// A single mutex linearizes every movement, which trivially satisfies the
// atomicity guarantee the Postgres engine gets from row locks.
type InMemory struct {
	mu           sync.RWMutex
	wallets      map[string]wallet.Wallet
	transactions map[string]Transaction
	byReference  map[string]string
	order        []string
}

// NewInMemory creates an empty in-memory engine.
func NewInMemory() *InMemory {
	return &InMemory{
		wallets:      make(map[string]wallet.Wallet),
		transactions: make(map[string]Transaction),
		byReference:  make(map[string]string),
	}
}

var _ Engine = (*InMemory)(nil)

// WalletStore returns a wallet.Store view backed by the same state, so
// wallet metadata operations and balance movements observe each other.
func (m *InMemory) WalletStore() wallet.Store {
	return walletStore{m}
}

type walletStore struct {
	m *InMemory
}

var _ wallet.Store = walletStore{}

func (s walletStore) Create(_ context.Context, w wallet.Wallet) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.wallets {
		if existing.OwnerID == w.OwnerID {
			return wallet.ErrOwnerHasWallet
		}
	}
	s.m.wallets[w.ID] = w
	return nil
}

func (s walletStore) Get(_ context.Context, id string) (wallet.Wallet, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	w, ok := s.m.wallets[id]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

func (s walletStore) GetByOwner(_ context.Context, ownerID string) (wallet.Wallet, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, w := range s.m.wallets {
		if w.OwnerID == ownerID {
			return w, nil
		}
	}
	return wallet.Wallet{}, wallet.ErrNotFound
}

func (s walletStore) SetPIN(_ context.Context, id string, hash []byte) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[id]
	if !ok {
		return wallet.ErrNotFound
	}
	w.PINHash = hash
	w.UpdatedAt = time.Now().UTC()
	s.m.wallets[id] = w
	return nil
}

func (s walletStore) SetStatus(_ context.Context, id string, status wallet.Status) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	w, ok := s.m.wallets[id]
	if !ok {
		return wallet.ErrNotFound
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	s.m.wallets[id] = w
	return nil
}

// Transfer atomically checks funds and moves amount between two wallets,
// recording a completed transaction keyed by the idempotency reference.
func (m *InMemory) Transfer(_ context.Context, input TransferInput) (TransferResult, error) {
	if !input.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if input.SenderWalletID == input.ReceiverWalletID {
		return TransferResult{}, ErrSameWallet
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byReference[input.Reference]; ok {
		existing := m.transactions[id]
		return m.transferResultLocked(existing), ErrDuplicateReference
	}

	sender, ok := m.wallets[input.SenderWalletID]
	if !ok {
		return TransferResult{}, ErrWalletNotFound
	}
	receiver, ok := m.wallets[input.ReceiverWalletID]
	if !ok {
		return TransferResult{}, ErrWalletNotFound
	}
	if sender.Status != wallet.StatusActive || receiver.Status != wallet.StatusActive {
		return TransferResult{}, ErrWalletNotActive
	}
	if sender.Currency != input.Currency || receiver.Currency != input.Currency {
		return TransferResult{}, ErrCurrencyMismatch
	}
	if sender.Balance.LessThan(input.Amount) {
		return TransferResult{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	sender.Balance = sender.Balance.Sub(input.Amount)
	sender.UpdatedAt = now
	receiver.Balance = receiver.Balance.Add(input.Amount)
	receiver.UpdatedAt = now
	m.wallets[sender.ID] = sender
	m.wallets[receiver.ID] = receiver

	completed := now
	txn := Transaction{
		ID:               uuid.New().String(),
		SenderWalletID:   sender.ID,
		ReceiverWalletID: receiver.ID,
		Kind:             input.Kind,
		Amount:           input.Amount,
		Currency:         input.Currency,
		Status:           StatusCompleted,
		Reference:        input.Reference,
		MessageRef:       input.MessageRef,
		CreatedAt:        now,
		CompletedAt:      &completed,
	}
	m.insertLocked(txn)

	return TransferResult{
		Transaction:     txn,
		SenderBalance:   sender.Balance,
		ReceiverBalance: receiver.Balance,
	}, nil
}

// Deposit credits a wallet from an external source.
func (m *InMemory) Deposit(_ context.Context, input FundingInput) (FundingResult, error) {
	if !input.Amount.IsPositive() {
		return FundingResult{}, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byReference[input.Reference]; ok {
		existing := m.transactions[id]
		return m.fundingResultLocked(existing, input.WalletID), ErrDuplicateReference
	}

	w, ok := m.wallets[input.WalletID]
	if !ok {
		return FundingResult{}, ErrWalletNotFound
	}
	if w.Status != wallet.StatusActive {
		return FundingResult{}, ErrWalletNotActive
	}
	if w.Currency != input.Currency {
		return FundingResult{}, ErrCurrencyMismatch
	}

	now := time.Now().UTC()
	w.Balance = w.Balance.Add(input.Amount)
	w.UpdatedAt = now
	m.wallets[w.ID] = w

	completed := now
	txn := Transaction{
		ID:               uuid.New().String(),
		ReceiverWalletID: w.ID,
		Kind:             KindDeposit,
		Amount:           input.Amount,
		Currency:         input.Currency,
		Status:           StatusCompleted,
		Reference:        input.Reference,
		MessageRef:       input.MessageRef,
		CreatedAt:        now,
		CompletedAt:      &completed,
	}
	m.insertLocked(txn)

	return FundingResult{Transaction: txn, Balance: w.Balance}, nil
}

// Withdraw debits a wallet toward an external destination after the same
// funds check a transfer performs.
func (m *InMemory) Withdraw(_ context.Context, input FundingInput) (FundingResult, error) {
	if !input.Amount.IsPositive() {
		return FundingResult{}, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byReference[input.Reference]; ok {
		existing := m.transactions[id]
		return m.fundingResultLocked(existing, input.WalletID), ErrDuplicateReference
	}

	w, ok := m.wallets[input.WalletID]
	if !ok {
		return FundingResult{}, ErrWalletNotFound
	}
	if w.Status != wallet.StatusActive {
		return FundingResult{}, ErrWalletNotActive
	}
	if w.Currency != input.Currency {
		return FundingResult{}, ErrCurrencyMismatch
	}
	if w.Balance.LessThan(input.Amount) {
		return FundingResult{}, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	w.Balance = w.Balance.Sub(input.Amount)
	w.UpdatedAt = now
	m.wallets[w.ID] = w

	completed := now
	txn := Transaction{
		ID:             uuid.New().String(),
		SenderWalletID: w.ID,
		Kind:           KindWithdrawal,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Status:         StatusCompleted,
		Reference:      input.Reference,
		MessageRef:     input.MessageRef,
		CreatedAt:      now,
		CompletedAt:    &completed,
	}
	m.insertLocked(txn)

	return FundingResult{Transaction: txn, Balance: w.Balance}, nil
}

// RecordFailure writes a terminal failed transaction, consuming the
// idempotency reference without touching any balance.
func (m *InMemory) RecordFailure(_ context.Context, input FailureInput) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byReference[input.Reference]; ok {
		return m.transactions[id], ErrDuplicateReference
	}

	txn := Transaction{
		ID:               uuid.New().String(),
		SenderWalletID:   input.SenderWalletID,
		ReceiverWalletID: input.ReceiverWalletID,
		Kind:             input.Kind,
		Amount:           input.Amount,
		Currency:         input.Currency,
		Status:           StatusFailed,
		Reference:        input.Reference,
		FailureReason:    input.Reason,
		CreatedAt:        time.Now().UTC(),
	}
	m.insertLocked(txn)
	return txn, nil
}

// Cancel transitions a pending transaction to cancelled. Terminal
// transactions are immutable.
func (m *InMemory) Cancel(_ context.Context, id string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if txn.Status.Terminal() {
		return txn, ErrTerminalState
	}
	txn.Status = StatusCancelled
	m.transactions[id] = txn
	return txn, nil
}

// Get returns a transaction by id.
func (m *InMemory) Get(_ context.Context, id string) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

// FindByReference returns the recorded outcome for an idempotency reference.
func (m *InMemory) FindByReference(_ context.Context, reference string) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byReference[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return m.transactions[id], nil
}

// List returns the wallet's transactions in reverse-chronological order
// with keyset pagination.
func (m *InMemory) List(_ context.Context, walletID, cursor string, limit int) ([]Transaction, string, error) {
	limit = normalizeLimit(limit)

	var afterAt time.Time
	var afterID string
	if cursor != "" {
		var err error
		afterAt, afterID, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var page []Transaction
	for i := len(m.order) - 1; i >= 0; i-- {
		txn := m.transactions[m.order[i]]
		if txn.SenderWalletID != walletID && txn.ReceiverWalletID != walletID {
			continue
		}
		if cursor != "" {
			if txn.CreatedAt.After(afterAt) || (txn.CreatedAt.Equal(afterAt) && txn.ID >= afterID) {
				continue
			}
		}
		page = append(page, txn)
		if len(page) == limit+1 {
			break
		}
	}

	next := ""
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, next, nil
}

func (m *InMemory) insertLocked(txn Transaction) {
	m.transactions[txn.ID] = txn
	m.byReference[txn.Reference] = txn.ID
	m.order = append(m.order, txn.ID)
}

func (m *InMemory) transferResultLocked(txn Transaction) TransferResult {
	res := TransferResult{Transaction: txn}
	if w, ok := m.wallets[txn.SenderWalletID]; ok {
		res.SenderBalance = w.Balance
	}
	if w, ok := m.wallets[txn.ReceiverWalletID]; ok {
		res.ReceiverBalance = w.Balance
	}
	return res
}

func (m *InMemory) fundingResultLocked(txn Transaction, walletID string) FundingResult {
	res := FundingResult{Transaction: txn}
	if w, ok := m.wallets[walletID]; ok {
		res.Balance = w.Balance
	}
	return res
}
