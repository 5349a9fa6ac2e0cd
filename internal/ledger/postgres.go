package ledger

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

const (
	uniqueViolationCode     = "23505"
	serializationFailure    = "40001"
	deadlockDetected        = "40P01"
	defaultConflictAttempts = 3
)

// Postgres persists the ledger in PostgreSQL. Wallet rows are locked with
// SELECT ... FOR UPDATE in ascending id order, so any two movements touching
// a shared wallet serialize against each other and no lock cycle can form.
// The transactions.reference unique constraint is the durable idempotency
// index; it commits in the same database transaction as the balance
// mutation, so a movement and its idempotency record are co-atomic.
type Postgres struct {
	db          *pgxpool.Pool
	maxAttempts int
}

// NewPostgres constructs a Postgres-backed ledger engine. maxAttempts bounds
// retries on serialization conflicts before ErrUnavailable is surfaced.
func NewPostgres(db *pgxpool.Pool, maxAttempts int) *Postgres {
	if maxAttempts <= 0 {
		maxAttempts = defaultConflictAttempts
	}
	return &Postgres{db: db, maxAttempts: maxAttempts}
}

var _ Engine = (*Postgres)(nil)

type lockedWallet struct {
	ID       uuid.UUID
	Balance  decimal.Decimal
	Currency string
	Status   string
}

// Transfer moves amount between two wallets as one database transaction.
func (p *Postgres) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if !input.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	senderID, err := uuid.Parse(input.SenderWalletID)
	if err != nil {
		return TransferResult{}, ErrWalletNotFound
	}
	receiverID, err := uuid.Parse(input.ReceiverWalletID)
	if err != nil {
		return TransferResult{}, ErrWalletNotFound
	}
	if senderID == receiverID {
		return TransferResult{}, ErrSameWallet
	}

	var result TransferResult
	err = p.withConflictRetry(ctx, func(tx pgx.Tx) error {
		locked, err := lockWallets(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		sender, receiver := locked[senderID], locked[receiverID]

		if existing, err := findByReferenceTx(ctx, tx, input.Reference); err == nil {
			result = TransferResult{
				Transaction:     existing,
				SenderBalance:   sender.Balance,
				ReceiverBalance: receiver.Balance,
			}
			return ErrDuplicateReference
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if sender.Status != string(wallet.StatusActive) || receiver.Status != string(wallet.StatusActive) {
			return ErrWalletNotActive
		}
		if sender.Currency != input.Currency || receiver.Currency != input.Currency {
			return ErrCurrencyMismatch
		}
		if sender.Balance.LessThan(input.Amount) {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		var senderBalance, receiverBalance decimal.Decimal
		if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance - $2, updated_at = $3 WHERE id = $1 RETURNING balance`,
			senderID, input.Amount, now).Scan(&senderBalance); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2, updated_at = $3 WHERE id = $1 RETURNING balance`,
			receiverID, input.Amount, now).Scan(&receiverBalance); err != nil {
			return err
		}

		txn := Transaction{
			ID:               uuid.New().String(),
			SenderWalletID:   input.SenderWalletID,
			ReceiverWalletID: input.ReceiverWalletID,
			Kind:             input.Kind,
			Amount:           input.Amount,
			Currency:         input.Currency,
			Status:           StatusCompleted,
			Reference:        input.Reference,
			MessageRef:       input.MessageRef,
			CreatedAt:        now,
			CompletedAt:      &now,
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		result = TransferResult{
			Transaction:     txn,
			SenderBalance:   senderBalance,
			ReceiverBalance: receiverBalance,
		}
		return nil
	})

	if errors.Is(err, ErrDuplicateReference) {
		return result, ErrDuplicateReference
	}
	if err != nil {
		if dup, ok := p.recoverDuplicate(ctx, err, input.Reference); ok {
			return TransferResult{Transaction: dup}, ErrDuplicateReference
		}
		return TransferResult{}, err
	}
	return result, nil
}

// Deposit credits a wallet from an external source.
func (p *Postgres) Deposit(ctx context.Context, input FundingInput) (FundingResult, error) {
	return p.fund(ctx, input, KindDeposit)
}

// Withdraw debits a wallet toward an external destination.
func (p *Postgres) Withdraw(ctx context.Context, input FundingInput) (FundingResult, error) {
	return p.fund(ctx, input, KindWithdrawal)
}

func (p *Postgres) fund(ctx context.Context, input FundingInput, kind Kind) (FundingResult, error) {
	if !input.Amount.IsPositive() {
		return FundingResult{}, ErrInvalidAmount
	}
	walletID, err := uuid.Parse(input.WalletID)
	if err != nil {
		return FundingResult{}, ErrWalletNotFound
	}

	var result FundingResult
	err = p.withConflictRetry(ctx, func(tx pgx.Tx) error {
		locked, err := lockWallets(ctx, tx, walletID)
		if err != nil {
			return err
		}
		w := locked[walletID]

		if existing, err := findByReferenceTx(ctx, tx, input.Reference); err == nil {
			result = FundingResult{Transaction: existing, Balance: w.Balance}
			return ErrDuplicateReference
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if w.Status != string(wallet.StatusActive) {
			return ErrWalletNotActive
		}
		if w.Currency != input.Currency {
			return ErrCurrencyMismatch
		}

		now := time.Now().UTC()
		txn := Transaction{
			ID:          uuid.New().String(),
			Kind:        kind,
			Amount:      input.Amount,
			Currency:    input.Currency,
			Status:      StatusCompleted,
			Reference:   input.Reference,
			MessageRef:  input.MessageRef,
			CreatedAt:   now,
			CompletedAt: &now,
		}

		var balance decimal.Decimal
		switch kind {
		case KindDeposit:
			txn.ReceiverWalletID = input.WalletID
			if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2, updated_at = $3 WHERE id = $1 RETURNING balance`,
				walletID, input.Amount, now).Scan(&balance); err != nil {
				return err
			}
		case KindWithdrawal:
			if w.Balance.LessThan(input.Amount) {
				return ErrInsufficientFunds
			}
			txn.SenderWalletID = input.WalletID
			if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance - $2, updated_at = $3 WHERE id = $1 RETURNING balance`,
				walletID, input.Amount, now).Scan(&balance); err != nil {
				return err
			}
		}

		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		result = FundingResult{Transaction: txn, Balance: balance}
		return nil
	})

	if errors.Is(err, ErrDuplicateReference) {
		return result, ErrDuplicateReference
	}
	if err != nil {
		if dup, ok := p.recoverDuplicate(ctx, err, input.Reference); ok {
			return FundingResult{Transaction: dup}, ErrDuplicateReference
		}
		return FundingResult{}, err
	}
	return result, nil
}

// RecordFailure inserts a terminal failed transaction so the reference is
// consumed without any balance movement.
func (p *Postgres) RecordFailure(ctx context.Context, input FailureInput) (Transaction, error) {
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

	err := p.withConflictRetry(ctx, func(tx pgx.Tx) error {
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		if dup, ok := p.recoverDuplicate(ctx, err, input.Reference); ok {
			return dup, ErrDuplicateReference
		}
		return Transaction{}, err
	}
	return txn, nil
}

// Cancel transitions a pending transaction to cancelled.
func (p *Postgres) Cancel(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}

	row := p.db.QueryRow(ctx, `UPDATE transactions SET status = 'cancelled' WHERE id = $1 AND status = 'pending'
        RETURNING `+transactionColumns, txID)
	txn, err := scanTransaction(row)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Transaction{}, err
	}

	// No pending row updated; distinguish missing from terminal.
	existing, err := p.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	return existing, ErrTerminalState
}

// Get returns a transaction by id.
func (p *Postgres) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	row := p.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	return scanTransaction(row)
}

// FindByReference returns the recorded outcome for an idempotency reference.
func (p *Postgres) FindByReference(ctx context.Context, reference string) (Transaction, error) {
	row := p.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	return scanTransaction(row)
}

// findByReferenceTx performs the reference lookup inside an open transaction,
// after the wallet locks are held, so the duplicate check and the insert see
// the same snapshot.
func findByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (Transaction, error) {
	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	return scanTransaction(row)
}

// List returns a wallet's transactions newest first with keyset pagination.
func (p *Postgres) List(ctx context.Context, walletID, cursor string, limit int) ([]Transaction, string, error) {
	wID, err := uuid.Parse(walletID)
	if err != nil {
		return nil, "", ErrWalletNotFound
	}
	limit = normalizeLimit(limit)

	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE (sender_wallet_id = $1 OR receiver_wallet_id = $1)`
	args := []any{wID}
	if cursor != "" {
		afterAt, afterID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		afterUUID, err := uuid.Parse(afterID)
		if err != nil {
			return nil, "", errors.New("malformed cursor")
		}
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, afterAt, afterUUID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + strconv.Itoa(limit+1)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, "", err
		}
		page = append(page, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, next, nil
}

// withConflictRetry runs fn inside a transaction, retrying a bounded number
// of times on serialization conflicts before surfacing ErrUnavailable.
func (p *Postgres) withConflictRetry(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}

		err = fn(tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			if isConflict(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isConflict(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return errors.Join(ErrUnavailable, lastErr)
}

func (p *Postgres) recoverDuplicate(ctx context.Context, err error, reference string) (Transaction, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return Transaction{}, false
	}
	existing, lookupErr := p.FindByReference(ctx, reference)
	if lookupErr != nil {
		return Transaction{}, false
	}
	return existing, true
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}

// lockWallets acquires FOR UPDATE row locks in ascending id order.
func lockWallets(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]lockedWallet, error) {
	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	locked := make(map[uuid.UUID]lockedWallet, len(ordered))
	for _, id := range ordered {
		var w lockedWallet
		err := tx.QueryRow(ctx, `SELECT id, balance, currency, status FROM wallets WHERE id = $1 FOR UPDATE`, id).
			Scan(&w.ID, &w.Balance, &w.Currency, &w.Status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrWalletNotFound
			}
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

const transactionColumns = `id, sender_wallet_id, receiver_wallet_id, kind, amount, currency, status, reference, message_ref, failure_reason, created_at, completed_at`

func insertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO transactions
        (id, sender_wallet_id, receiver_wallet_id, kind, amount, currency, status, reference, message_ref, failure_reason, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.MustParse(txn.ID), nullableUUID(txn.SenderWalletID), nullableUUID(txn.ReceiverWalletID),
		string(txn.Kind), txn.Amount, txn.Currency, string(txn.Status), txn.Reference,
		nullableString(txn.MessageRef), nullableString(txn.FailureReason), txn.CreatedAt, txn.CompletedAt)
	return err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn         Transaction
		id          uuid.UUID
		senderID    *uuid.UUID
		receiverID  *uuid.UUID
		kind        string
		status      string
		messageRef  *string
		failReason  *string
		createdAt   time.Time
		completedAt *time.Time
	)
	err := row.Scan(&id, &senderID, &receiverID, &kind, &txn.Amount, &txn.Currency, &status,
		&txn.Reference, &messageRef, &failReason, &createdAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	txn.ID = id.String()
	if senderID != nil {
		txn.SenderWalletID = senderID.String()
	}
	if receiverID != nil {
		txn.ReceiverWalletID = receiverID.String()
	}
	txn.Kind = Kind(kind)
	txn.Status = Status(status)
	if messageRef != nil {
		txn.MessageRef = *messageRef
	}
	if failReason != nil {
		txn.FailureReason = *failReason
	}
	txn.CreatedAt = createdAt.UTC()
	if completedAt != nil {
		utc := completedAt.UTC()
		txn.CompletedAt = &utc
	}
	return txn, nil
}

func nullableUUID(id string) *uuid.UUID {
	if id == "" {
		return nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
