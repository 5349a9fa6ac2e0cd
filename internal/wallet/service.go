package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrPinPolicy indicates the supplied PIN does not meet the complexity policy.
	ErrPinPolicy = errors.New("PIN must be 4 to 6 digits and not a single repeated digit")

	// ErrPinMismatch indicates PIN and confirmation differ.
	ErrPinMismatch = errors.New("PIN and confirmation do not match")

	// ErrInvalidStatus indicates an unknown wallet status value.
	ErrInvalidStatus = errors.New("invalid wallet status")

	// ErrInvalidCurrency indicates the currency is not a 3-letter code.
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
)

// Service exposes wallet lifecycle operations. Balance movements are owned
// by the ledger engine, not this service.
type Service struct {
	store           Store
	defaultCurrency string
}

// NewService builds a wallet service instance.
func NewService(store Store, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "NGN"
	}
	return &Service{store: store, defaultCurrency: defaultCurrency}
}

// CreateInput captures data required to provision a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions a zero-balance wallet for an owner. Each owner gets
// exactly one wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}

	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return Wallet{}, ErrInvalidCurrency
	}

	if _, err := s.store.GetByOwner(ctx, input.OwnerID); err == nil {
		return Wallet{}, ErrOwnerHasWallet
	} else if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.New().String(),
		OwnerID:   input.OwnerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, w); err != nil {
		return Wallet{}, err
	}

	return w, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.store.Get(ctx, id)
}

// GetByOwner retrieves the wallet for an owner identity.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.store.GetByOwner(ctx, ownerID)
}

// SetPIN validates the PIN against the complexity policy and stores it as a
// bcrypt hash. The plaintext PIN is never persisted.
func (s *Service) SetPIN(ctx context.Context, id, pin, confirm string) (Wallet, error) {
	if pin != confirm {
		return Wallet{}, ErrPinMismatch
	}
	if err := ValidatePIN(pin); err != nil {
		return Wallet{}, err
	}

	if _, err := s.store.Get(ctx, id); err != nil {
		return Wallet{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return Wallet{}, err
	}

	if err := s.store.SetPIN(ctx, id, hash); err != nil {
		return Wallet{}, err
	}

	return s.store.Get(ctx, id)
}

// SetStatus transitions the wallet between active, suspended and locked.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Wallet, error) {
	if !status.Valid() {
		return Wallet{}, ErrInvalidStatus
	}
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return Wallet{}, err
	}
	return s.store.Get(ctx, id)
}

// ValidatePIN enforces the minimum PIN complexity policy: 4 to 6 digits,
// not all the same digit.
func ValidatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return ErrPinPolicy
	}
	same := true
	for i, r := range pin {
		if r < '0' || r > '9' {
			return ErrPinPolicy
		}
		if i > 0 && byte(r) != pin[0] {
			same = false
		}
	}
	if same {
		return ErrPinPolicy
	}
	return nil
}

// VerifyPIN compares a candidate PIN against the stored hash.
func VerifyPIN(hash []byte, pin string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil
}
