package credit

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the credit ledger protocol consumed by the generation
// orchestrator and the billing webhook handler.
type Ledger interface {
	// Credit increases balance by amount and appends a transaction row.
	// Idempotent-safe against duplicate delivery when referenceID is set.
	Credit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error

	// Debit decreases balance by amount; fails with ErrInsufficientCredits
	// rather than driving the balance negative.
	Debit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error

	// GetBalance returns the current balance for a user.
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)

	// ListTransactions returns paginated history, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error)
}

type service struct {
	repo *Repository
}

// NewService creates a credit ledger service
func NewService(repo *Repository) Ledger {
	return &service{repo: repo}
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	return s.repo.Credit(ctx, userID, amount, txType, referenceID)
}

func (s *service) Debit(ctx context.Context, userID uuid.UUID, amount int, txType TransactionType, referenceID string) error {
	return s.repo.Debit(ctx, userID, amount, txType, referenceID)
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, Pagination{Limit: limit, Offset: offset})
}
