package generation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/petgroove/petgroove-api/internal/domain/user"
)

// Status of a generation. pending and processing are the only
// non-terminal states; nothing ever leaves completed or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the generation can still change
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is a single dancing-pet render job
type Generation struct {
	ID           uuid.UUID      `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	PetImageURL  string         `db:"pet_image_url"`
	DanceType    string         `db:"dance_type"`
	Prompt       sql.NullString `db:"prompt"`
	VideoURL     sql.NullString `db:"video_url"`
	Status       Status         `db:"status"`
	RunwayTaskID sql.NullString `db:"runway_task_id"`
	ModelUsed    string         `db:"model_used"`
	CreditsUsed  int            `db:"credits_used"`
	PollAttempts int            `db:"poll_attempts"`
	CreatedAt    time.Time      `db:"created_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
}

// Dance is a selectable dance style
type Dance struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Dances is the static catalog shown to users. IDs are what the API
// accepts as dance_type; names feed the prompt generator.
var Dances = []Dance{
	{ID: "macarena", Name: "Macarena", Description: "The classic 90s dance"},
	{ID: "cha-cha-slide", Name: "Cha-Cha Slide", Description: "Slide to the left, slide to the right"},
	{ID: "robot", Name: "Robot", Description: "Robotic dance moves"},
	{ID: "floss", Name: "Floss", Description: "The viral flossing dance"},
	{ID: "moonwalk", Name: "Moonwalk", Description: "Michael Jackson style"},
	{ID: "disco", Name: "Disco", Description: "70s disco dancing"},
	{ID: "breakdance", Name: "Breakdance", Description: "Breakdancing moves"},
	{ID: "salsa", Name: "Salsa", Description: "Salsa dancing"},
	{ID: "tango", Name: "Tango", Description: "Tango dancing"},
	{ID: "hip-hop", Name: "Hip-Hop", Description: "Hip-hop dance moves"},
}

// DanceByID looks up a catalog entry; ok is false for unknown IDs
func DanceByID(id string) (Dance, bool) {
	for _, d := range Dances {
		if d.ID == id {
			return d, true
		}
	}
	return Dance{}, false
}

// ModelPolicy pins a render model and its credit cost to a tier
type ModelPolicy struct {
	Model   string
	Credits int
}

const (
	ModelStandard = "gen4_turbo"
	ModelPremium  = "veo3.1_fast"

	CostStandard = 400
	CostPremium  = 500
)

// modelPolicies maps subscription tiers to the model used for new
// generations. Resolved once at submission and frozen into the row.
var modelPolicies = map[user.SubscriptionTier]ModelPolicy{
	user.TierNone:   {Model: ModelStandard, Credits: CostStandard},
	user.TierTrial:  {Model: ModelStandard, Credits: CostStandard},
	user.TierWeekly: {Model: ModelPremium, Credits: CostPremium},
	user.TierAnnual: {Model: ModelPremium, Credits: CostPremium},
}

// PolicyForTier resolves the model policy for a tier. Unknown tiers
// fall back to the standard model.
func PolicyForTier(tier user.SubscriptionTier) ModelPolicy {
	if p, ok := modelPolicies[tier]; ok {
		return p
	}
	return ModelPolicy{Model: ModelStandard, Credits: CostStandard}
}
