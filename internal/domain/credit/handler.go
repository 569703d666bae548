package credit

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/middleware"
	"github.com/petgroove/petgroove-api/internal/pkg/response"
)

// Handler serves account balance and ledger history endpoints
type Handler struct {
	ledger   Ledger
	userRepo user.Repository
}

// NewHandler creates credit handler
func NewHandler(ledger Ledger, userRepo user.Repository) *Handler {
	return &Handler{ledger: ledger, userRepo: userRepo}
}

// BalanceResponse is the body of GET /account/credits
type BalanceResponse struct {
	Credits            int    `json:"credits"`
	SubscriptionTier   string `json:"subscription_tier"`
	SubscriptionStatus string `json:"subscription_status"`
}

// GetBalance handles GET /account/credits
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	u, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		if err == user.ErrNotFound {
			response.NotFound(w, "User not found")
			return
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to fetch user for balance")
		response.InternalError(w)
		return
	}

	response.OK(w, BalanceResponse{
		Credits:            u.Credits,
		SubscriptionTier:   string(u.SubscriptionTier),
		SubscriptionStatus: string(u.SubscriptionStatus),
	})
}

// ListTransactions handles GET /account/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.ledger.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list credit transactions")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"transactions": transactions})
}
