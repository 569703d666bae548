package generation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/domain/credit"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/pkg/runway"
)

const (
	// WakeupChannel notifies the render worker that a new job was
	// submitted so it can poll immediately instead of waiting a tick.
	WakeupChannel = "generation:wakeup"

	// statusChannelPrefix + generation ID carries status transitions
	// for the websocket stream.
	statusChannelPrefix = "generation:status:"

	submitTimeout = 90 * time.Second
)

// PromptGenerator turns a pet image and dance name into a render prompt
type PromptGenerator interface {
	GenerateDancePrompt(ctx context.Context, petImageURL, danceName string) (string, error)
}

// RenderClient is the image-to-video vendor surface the orchestrator
// and poller consume.
type RenderClient interface {
	CreateGeneration(ctx context.Context, req runway.GenerationRequest) (string, error)
	GetTask(ctx context.Context, taskID string) (*runway.Task, error)
	DownloadOutput(ctx context.Context, url string) (io.ReadCloser, error)
}

// Service orchestrates the generation lifecycle
type Service struct {
	repo     Repository
	userRepo user.Repository
	ledger   credit.Ledger
	prompts  PromptGenerator
	renderer RenderClient
	redis    *redis.Client // nil if Redis disabled
}

// NewService creates the generation orchestrator
func NewService(repo Repository, userRepo user.Repository, ledger credit.Ledger, prompts PromptGenerator, renderer RenderClient, rdb *redis.Client) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		ledger:   ledger,
		prompts:  prompts,
		renderer: renderer,
		redis:    rdb,
	}
}

// Submit validates the request, reserves credits, obtains a prompt and
// creates the generation. The render job itself is submitted
// asynchronously; callers get the pending row back immediately.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req *SubmitRequest) (*SubmitResponse, error) {
	if req.ImageURL == "" {
		return nil, ErrInvalidImageURL
	}
	dance, ok := DanceByID(req.DanceType)
	if !ok {
		return nil, ErrInvalidDanceType
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	policy := PolicyForTier(u.SubscriptionTier)
	genID := uuid.New()

	// Reserve credits up front. The debit is atomic; a failed render
	// refunds it later, so the balance can never be spent twice.
	refID := "generation:" + genID.String()
	if err := s.ledger.Debit(ctx, userID, policy.Credits, credit.TransactionTypeUsage, refID); err != nil {
		if errors.Is(err, credit.ErrInsufficientCredits) {
			balance, berr := s.ledger.GetBalance(ctx, userID)
			if berr != nil {
				balance = u.Credits
			}
			return nil, &InsufficientCreditsError{Required: policy.Credits, Available: balance}
		}
		return nil, err
	}

	prompt, err := s.prompts.GenerateDancePrompt(ctx, req.ImageURL, dance.Name)
	if err != nil {
		s.refund(context.WithoutCancel(ctx), userID, policy.Credits, genID)
		log.Error().Err(err).Str("dance", dance.ID).Msg("prompt generation failed")
		return nil, ErrPromptGeneration
	}

	g := &Generation{
		ID:          genID,
		UserID:      userID,
		PetImageURL: req.ImageURL,
		DanceType:   dance.ID,
		Prompt:      sql.NullString{String: prompt, Valid: true},
		Status:      StatusPending,
		ModelUsed:   policy.Model,
		CreditsUsed: policy.Credits,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, g); err != nil {
		s.refund(context.WithoutCancel(ctx), userID, policy.Credits, genID)
		return nil, err
	}

	go s.submitRender(g, prompt)

	return &SubmitResponse{
		GenerationID: g.ID,
		Status:       g.Status,
		CreditsUsed:  g.CreditsUsed,
	}, nil
}

// submitRender hands the job to the vendor. Runs detached from the
// request; failures fail the generation and refund the reservation.
func (s *Service) submitRender(g *Generation, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	taskID, err := s.renderer.CreateGeneration(ctx, runway.GenerationRequest{
		ImageURL: g.PetImageURL,
		Prompt:   prompt,
		Model:    g.ModelUsed,
	})
	if err != nil {
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("render submission rejected")
		s.Fail(ctx, g, true)
		return
	}

	if err := s.repo.MarkProcessing(ctx, g.ID, taskID); err != nil {
		// Without the processing transition the poller will never claim
		// this row, so fail it and return the reservation instead of
		// leaving the user charged for a job nobody tracks.
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("failed to mark generation processing")
		s.Fail(ctx, g, true)
		return
	}
	g.Status = StatusProcessing
	s.PublishStatus(ctx, g, "")
	s.wakeWorker(ctx)
}

// Complete transitions to completed with the stored video URL
func (s *Service) Complete(ctx context.Context, g *Generation, videoURL string) error {
	if err := s.repo.MarkCompleted(ctx, g.ID, videoURL); err != nil {
		return err
	}
	g.Status = StatusCompleted
	g.VideoURL = sql.NullString{String: videoURL, Valid: true}
	s.PublishStatus(ctx, g, "")
	return nil
}

// Fail transitions to failed and, when refund is set, returns the
// reserved credits to the user.
func (s *Service) Fail(ctx context.Context, g *Generation, refund bool) {
	if err := s.repo.MarkFailed(ctx, g.ID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("failed to mark generation failed")
	}
	g.Status = StatusFailed
	if refund {
		s.refund(ctx, g.UserID, g.CreditsUsed, g.ID)
	}
	s.PublishStatus(ctx, g, "render failed")
}

// GetForUser returns a generation only if the caller owns it
func (s *Service) GetForUser(ctx context.Context, id, userID uuid.UUID) (*Generation, error) {
	return s.repo.GetByIDForUser(ctx, id, userID)
}

// ListForUser returns the caller's generations, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Generation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// refund compensates a reservation. A refund that itself fails leaves
// the ledger short; that is logged loudly rather than retried inline.
func (s *Service) refund(ctx context.Context, userID uuid.UUID, amount int, genID uuid.UUID) {
	refID := "refund:generation:" + genID.String()
	if err := s.ledger.Credit(ctx, userID, amount, credit.TransactionTypeRefund, refID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Str("generation_id", genID.String()).
			Int("amount", amount).
			Msg("credit refund failed")
	}
}

// PublishStatus pushes a transition onto the generation's status
// channel for websocket subscribers. Best effort.
func (s *Service) PublishStatus(ctx context.Context, g *Generation, errMsg string) {
	if s.redis == nil {
		return
	}
	event := StatusEvent{
		GenerationID: g.ID,
		Status:       g.Status,
		Error:        errMsg,
	}
	if g.VideoURL.Valid {
		event.VideoURL = &g.VideoURL.String
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, StatusChannel(g.ID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("generation_id", g.ID.String()).Msg("status publish failed")
	}
}

// StatusChannel returns the Redis pub/sub channel for a generation
func StatusChannel(id uuid.UUID) string {
	return statusChannelPrefix + id.String()
}

func (s *Service) wakeWorker(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, WakeupChannel, "1").Err(); err != nil {
		log.Warn().Err(err).Msg("worker wakeup publish failed")
	}
}
