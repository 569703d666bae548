package credit

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the type of credit transaction
type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeUsage        TransactionType = "usage"
	TransactionTypeRefund       TransactionType = "refund"
)

// Transaction is an append-only ledger row. One row exists for every
// balance mutation; the balance on the user row is reconstructible from
// the sum of a user's transactions.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      int             `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Pagination controls simple list pagination
type Pagination struct {
	Limit  int
	Offset int
}
