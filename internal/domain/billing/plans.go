package billing

import "github.com/petgroove/petgroove-api/internal/domain/user"

// Checkout modes
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// Plan ties a purchasable plan to its tier, credit grant and checkout mode
type Plan struct {
	ID      string
	Tier    user.SubscriptionTier
	Credits int
	Mode    string
}

const (
	PlanWeeklyTrial = "weekly_trial"
	PlanAnnual      = "annual"

	WeeklyCredits = 1000
	AnnualCredits = 48000
)

// plans is the static plan catalog. The weekly trial is a recurring
// subscription; its credits arrive per billing period through invoice
// webhooks. The annual plan is a one-time purchase credited at
// checkout.
var plans = map[string]Plan{
	PlanWeeklyTrial: {ID: PlanWeeklyTrial, Tier: user.TierTrial, Credits: WeeklyCredits, Mode: ModeSubscription},
	PlanAnnual:      {ID: PlanAnnual, Tier: user.TierAnnual, Credits: AnnualCredits, Mode: ModePayment},
}

// PlanByID looks up a plan; ok is false for unknown IDs
func PlanByID(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}
