package generation

import (
	"time"

	"github.com/google/uuid"
)

// SubmitRequest is the body of POST /generate
type SubmitRequest struct {
	ImageURL  string `json:"image_url" validate:"required,url"`
	DanceType string `json:"dance_type" validate:"required"`
}

// SubmitResponse is returned immediately; the render itself is async
type SubmitResponse struct {
	GenerationID uuid.UUID `json:"generation_id"`
	Status       Status    `json:"status"`
	CreditsUsed  int       `json:"credits_used"`
}

// GenerationResponse is the full public view of a generation
type GenerationResponse struct {
	ID          uuid.UUID  `json:"id"`
	PetImageURL string     `json:"pet_image_url"`
	DanceType   string     `json:"dance_type"`
	Status      Status     `json:"status"`
	VideoURL    *string    `json:"video_url,omitempty"`
	ModelUsed   string     `json:"model_used"`
	CreditsUsed int        `json:"credits_used"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewGenerationResponse converts an entity to its public view
func NewGenerationResponse(g *Generation) GenerationResponse {
	resp := GenerationResponse{
		ID:          g.ID,
		PetImageURL: g.PetImageURL,
		DanceType:   g.DanceType,
		Status:      g.Status,
		ModelUsed:   g.ModelUsed,
		CreditsUsed: g.CreditsUsed,
		CreatedAt:   g.CreatedAt,
	}
	if g.VideoURL.Valid {
		resp.VideoURL = &g.VideoURL.String
	}
	if g.CompletedAt.Valid {
		resp.CompletedAt = &g.CompletedAt.Time
	}
	return resp
}

// StatusEvent is pushed over the websocket stream on every transition
type StatusEvent struct {
	GenerationID uuid.UUID `json:"generation_id"`
	Status       Status    `json:"status"`
	VideoURL     *string   `json:"video_url,omitempty"`
	Error        string    `json:"error,omitempty"`
}
