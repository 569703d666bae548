package generation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository defines generation persistence operations
type Repository interface {
	Create(ctx context.Context, g *Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Generation, error)
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*Generation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Generation, error)
	ListProcessing(ctx context.Context) ([]Generation, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Generation, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, taskID string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, videoURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	IncrementPollAttempts(ctx context.Context, id uuid.UUID) (int, error)
}

// GenerationRepository is the sqlx-backed Repository implementation
type GenerationRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(ctx context.Context, g *Generation) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO generations (id, user_id, pet_image_url, dance_type, prompt, status, model_used, credits_used, poll_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, g.ID, g.UserID, g.PetImageURL, g.DanceType, g.Prompt, g.Status, g.ModelUsed, g.CreditsUsed, g.PollAttempts, g.CreatedAt)
	return err
}

func (r *GenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Generation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var g Generation
	err := r.db.GetContext(ctx2, &g, `SELECT * FROM generations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *GenerationRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*Generation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var g Generation
	err := r.db.GetContext(ctx2, &g, `SELECT * FROM generations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *GenerationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Generation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	gens := []Generation{}
	err := r.db.SelectContext(ctx2, &gens, `
		SELECT * FROM generations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return gens, err
}

// ListProcessing returns all in-flight renders, oldest first, so the
// worker can resume them after a restart.
func (r *GenerationRepository) ListProcessing(ctx context.Context) ([]Generation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	gens := []Generation{}
	err := r.db.SelectContext(ctx2, &gens, `
		SELECT * FROM generations
		WHERE status = $1
		ORDER BY created_at ASC
	`, StatusProcessing)
	return gens, err
}

// ListStalePending returns pending rows created before the cutoff.
// A pending row that old means the submitting process died between
// creating it and handing it to the poller.
func (r *GenerationRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]Generation, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	gens := []Generation{}
	err := r.db.SelectContext(ctx2, &gens, `
		SELECT * FROM generations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`, StatusPending, cutoff)
	return gens, err
}

// MarkProcessing records the vendor task ID and moves pending → processing.
// A row already past pending is left untouched.
func (r *GenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID, taskID string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE generations
		SET status = $1, runway_task_id = $2
		WHERE id = $3 AND status = $4
	`, StatusProcessing, taskID, id, StatusPending)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// MarkCompleted writes the video URL and completion time. Guarded so a
// terminal row cannot transition again.
func (r *GenerationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, videoURL string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE generations
		SET status = $1, video_url = $2, completed_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`, StatusCompleted, videoURL, time.Now(), id, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *GenerationRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE generations
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`, StatusFailed, time.Now(), id, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// IncrementPollAttempts bumps the durable attempt counter and returns
// the new value. Survives worker restarts, unlike an in-memory loop
// counter.
func (r *GenerationRepository) IncrementPollAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var attempts int
	err := r.db.GetContext(ctx2, &attempts, `
		UPDATE generations
		SET poll_attempts = poll_attempts + 1
		WHERE id = $1
		RETURNING poll_attempts
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
