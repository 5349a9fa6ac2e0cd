package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type memStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet
}

func newMemStore() *memStore {
	return &memStore{wallets: make(map[string]Wallet)}
}

func (s *memStore) Create(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.wallets {
		if existing.OwnerID == w.OwnerID {
			return ErrOwnerHasWallet
		}
	}
	s.wallets[w.ID] = w
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (s *memStore) GetByOwner(_ context.Context, ownerID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (s *memStore) SetPIN(_ context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return ErrNotFound
	}
	w.PINHash = hash
	s.wallets[id] = w
	return nil
}

func (s *memStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return ErrNotFound
	}
	w.Status = status
	s.wallets[id] = w
	return nil
}

func TestCreateWallet(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	ownerID := uuid.NewString()

	w, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.OwnerID != ownerID {
		t.Fatalf("owner = %s", w.OwnerID)
	}
	if !w.Balance.IsZero() {
		t.Fatalf("new wallet balance = %s", w.Balance)
	}
	if w.Currency != "NGN" {
		t.Fatalf("currency = %s", w.Currency)
	}
	if w.Status != StatusActive {
		t.Fatalf("status = %s", w.Status)
	}
}

func TestCreateOneWalletPerOwner(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	ownerID := uuid.NewString()

	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), CreateInput{OwnerID: ownerID})
	if !errors.Is(err, ErrOwnerHasWallet) {
		t.Fatalf("expected ErrOwnerHasWallet, got %v", err)
	}
}

func TestCreateRejectsBadCurrency(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	_, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString(), Currency: "NAIRA"})
	if !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestSetPIN(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	w, err := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.SetPIN(context.Background(), w.ID, "4821", "4821")
	if err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if !updated.HasPIN() {
		t.Fatal("expected wallet to report a PIN")
	}
	if !VerifyPIN(updated.PINHash, "4821") {
		t.Fatal("stored hash does not verify")
	}
	if VerifyPIN(updated.PINHash, "0000") {
		t.Fatal("wrong PIN verified")
	}
}

func TestSetPINMismatch(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	w, _ := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString()})

	_, err := svc.SetPIN(context.Background(), w.ID, "4821", "4822")
	if !errors.Is(err, ErrPinMismatch) {
		t.Fatalf("expected ErrPinMismatch, got %v", err)
	}
}

func TestValidatePIN(t *testing.T) {
	cases := []struct {
		pin string
		ok  bool
	}{
		{"4821", true},
		{"482113", true},
		{"123", false},
		{"1234567", false},
		{"12a4", false},
		{"1111", false},
		{"000000", false},
	}
	for _, tc := range cases {
		err := ValidatePIN(tc.pin)
		if tc.ok && err != nil {
			t.Errorf("ValidatePIN(%q) = %v, want nil", tc.pin, err)
		}
		if !tc.ok && !errors.Is(err, ErrPinPolicy) {
			t.Errorf("ValidatePIN(%q) = %v, want ErrPinPolicy", tc.pin, err)
		}
	}
}

func TestSetStatus(t *testing.T) {
	svc := NewService(newMemStore(), "NGN")
	w, _ := svc.Create(context.Background(), CreateInput{OwnerID: uuid.NewString()})

	updated, err := svc.SetStatus(context.Background(), w.ID, StatusSuspended)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != StatusSuspended {
		t.Fatalf("status = %s", updated.Status)
	}

	_, err = svc.SetStatus(context.Background(), w.ID, Status("frozen"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
