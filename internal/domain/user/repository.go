package user

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

// Repository defines user persistence operations
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	UpdateSubscription(ctx context.Context, id uuid.UUID, tier SubscriptionTier, status SubscriptionStatus, subscriptionID string) error
	UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error
}

// UserRepository is the sqlx-backed Repository implementation
type UserRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *User) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO users (id, email, password_hash, credits, subscription_tier, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordHash, u.Credits, u.SubscriptionTier, u.SubscriptionStatus, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx2, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx2, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*User, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx2, &u, `SELECT * FROM users WHERE stripe_subscription_id = $1`, subscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1
	`, id, customerID)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (r *UserRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, tier SubscriptionTier, status SubscriptionStatus, subscriptionID string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var subID interface{}
	if subscriptionID != "" {
		subID = subscriptionID
	}

	result, err := r.db.ExecContext(ctx2, `
		UPDATE users
		SET subscription_tier = $2,
		    subscription_status = $3,
		    stripe_subscription_id = COALESCE($4, stripe_subscription_id),
		    updated_at = now()
		WHERE id = $1
	`, id, tier, status, subID)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func (r *UserRepository) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx2, `
		UPDATE users SET subscription_status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
