package authz

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

var (
	// ErrWalletNotActive indicates the wallet is suspended or locked and no
	// debit may be authorized.
	ErrWalletNotActive = errors.New("wallet is not active")

	// ErrPinNotConfigured indicates the owner has not set a transaction PIN.
	ErrPinNotConfigured = errors.New("wallet PIN not configured")

	// ErrInvalidPin indicates the supplied PIN does not match the stored hash.
	ErrInvalidPin = errors.New("invalid PIN")
)

// Gate verifies wallet status and PIN before any debit is permitted.
// Repeated PIN failures within the limiter window lock the wallet; unlocking
// is an out-of-band status transition.
type Gate struct {
	store       wallet.Store
	limiter     AttemptLimiter
	maxAttempts int
	logger      *slog.Logger
}

// NewGate builds an authorization gate. maxAttempts bounds consecutive PIN
// failures before the wallet is locked.
func NewGate(store wallet.Store, limiter AttemptLimiter, maxAttempts int, logger *slog.Logger) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Gate{store: store, limiter: limiter, maxAttempts: maxAttempts, logger: logger}
}

// Authorize checks, in order: wallet exists, wallet is active, a PIN is
// configured, and the supplied PIN matches. It has no side effect beyond
// the failed-attempt counter and the auto-lock transition.
func (g *Gate) Authorize(ctx context.Context, walletID, pin string) error {
	w, err := g.store.Get(ctx, walletID)
	if err != nil {
		return err
	}

	if w.Status != wallet.StatusActive {
		return ErrWalletNotActive
	}

	if !w.HasPIN() {
		return ErrPinNotConfigured
	}

	if !wallet.VerifyPIN(w.PINHash, pin) {
		g.recordFailure(ctx, walletID)
		return ErrInvalidPin
	}

	if g.limiter != nil {
		if err := g.limiter.Reset(ctx, walletID); err != nil {
			g.logger.Warn("reset pin attempts", "wallet_id", walletID, "error", err)
		}
	}

	return nil
}

func (g *Gate) recordFailure(ctx context.Context, walletID string) {
	if g.limiter == nil {
		return
	}

	count, err := g.limiter.Fail(ctx, walletID)
	if err != nil {
		// Counter faults must not block authorization decisions.
		g.logger.Warn("record pin failure", "wallet_id", walletID, "error", err)
		return
	}

	if count >= int64(g.maxAttempts) {
		if err := g.store.SetStatus(ctx, walletID, wallet.StatusLocked); err != nil {
			g.logger.Error("lock wallet after pin failures", "wallet_id", walletID, "error", err)
			return
		}
		g.logger.Warn("wallet locked after repeated pin failures", "wallet_id", walletID, "attempts", count)
	}
}
