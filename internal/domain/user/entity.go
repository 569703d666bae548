package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier represents the user's plan tier (matches subscription_tier enum)
type SubscriptionTier string

const (
	TierNone   SubscriptionTier = "none"
	TierTrial  SubscriptionTier = "trial"
	TierWeekly SubscriptionTier = "weekly"
	TierAnnual SubscriptionTier = "annual"
)

// SubscriptionStatus represents the billing state of the subscription
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
)

// User represents a user account (matches users table)
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`

	// Credit balance, mutated only through the credit ledger
	Credits int `db:"credits"`

	// Subscription state, mutated by billing webhook events
	SubscriptionTier     SubscriptionTier   `db:"subscription_tier"`
	SubscriptionStatus   SubscriptionStatus `db:"subscription_status"`
	StripeCustomerID     sql.NullString     `db:"stripe_customer_id"`
	StripeSubscriptionID sql.NullString     `db:"stripe_subscription_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasPaidTier returns true if the user is on a paid plan
func (u *User) HasPaidTier() bool {
	return u.SubscriptionTier == TierWeekly || u.SubscriptionTier == TierAnnual
}
