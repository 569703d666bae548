package credit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository provides the two atomic ledger operations plus reads.
// All balance mutations in the system go through Credit and Debit; ad hoc
// read-modify-write of users.credits from application code is not allowed.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Credit increases a user's balance and appends a ledger row, atomically.
// Idempotent per (user, type, reference): replaying the same reference with
// the same amount is a no-op, with a different amount fails.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return r.apply(ctx, userID, amount, txType, referenceID)
}

// Debit decreases a user's balance and appends a negative ledger row,
// atomically. Fails with ErrInsufficientCredits rather than letting the
// balance go negative. Same idempotency rules as Credit.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return r.apply(ctx, userID, -amount, txType, referenceID)
}

// GetBalance returns the current credit balance for a user
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := r.db.GetContext(ctx2, &balance, `SELECT credits FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// ListTransactions returns paginated transaction history, newest first
func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT id, user_id, amount, type, reference_id, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, pagination.Offset)
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *Repository) apply(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := r.lockUser(ctx2, tx, userID)
	if err != nil {
		return err
	}

	existingAmount, exists, err := r.getTransactionAmountByRef(ctx2, tx, userID, txType, referenceID)
	if err != nil {
		return err
	}
	if exists {
		if existingAmount != amount {
			return ErrReferenceConflict
		}
		return nil // already applied, at-least-once delivery replay
	}

	nextBalance := balance + amount
	if nextBalance < 0 {
		return ErrInsufficientCredits
	}

	if _, err := tx.ExecContext(ctx2, `
		UPDATE users SET credits = $2, updated_at = now() WHERE id = $1
	`, userID, nextBalance); err != nil {
		return err
	}

	// A unique-violation on the INSERT aborts the surrounding
	// transaction, so the verification read afterwards needs a savepoint
	// to roll back to.
	if _, err := tx.ExecContext(ctx2, `SAVEPOINT ledger_insert`); err != nil {
		return err
	}
	if err := r.insertTransaction(ctx2, tx, userID, amount, txType, referenceID); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			if _, rbErr := tx.ExecContext(ctx2, `ROLLBACK TO SAVEPOINT ledger_insert`); rbErr != nil {
				return rbErr
			}
			existingAmount, exists, checkErr := r.getTransactionAmountByRef(ctx2, tx, userID, txType, referenceID)
			if checkErr != nil {
				return checkErr
			}
			if !exists || existingAmount != amount {
				return ErrReferenceConflict
			}
			return nil
		}
		return err
	}

	return tx.Commit()
}

func (r *Repository) lockUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error) {
	var balance int
	err := tx.GetContext(ctx, &balance, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (r *Repository) getTransactionAmountByRef(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, referenceID string) (int, bool, error) {
	if referenceID == "" {
		return 0, false, nil
	}

	var amount int
	err := tx.GetContext(ctx, &amount, `
		SELECT amount
		FROM credit_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return amount, true, nil
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	var ref interface{}
	if referenceID != "" {
		ref = referenceID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, amount, type, reference_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
	`, userID, amount, string(txType), ref)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}
