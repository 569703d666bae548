package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/middleware"
	"github.com/petgroove/petgroove-api/internal/pkg/response"
	"github.com/petgroove/petgroove-api/internal/pkg/stripe"
	"github.com/petgroove/petgroove-api/internal/pkg/validator"
)

// maxWebhookBody caps webhook payload size (Stripe events are small)
const maxWebhookBody = 1 << 20 // 1MB

// Handler handles billing HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates billing handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Subscribe handles POST /subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	result, err := h.service.CreateCheckout(r.Context(), userID, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownPlan):
			response.BadRequest(w, "Unknown subscription plan")
		case errors.Is(err, ErrUserNotFound):
			response.NotFound(w, "User not found")
		default:
			log.Error().
				Err(err).
				Str("user_id", userID.String()).
				Str("plan", req.Plan).
				Msg("checkout creation failed")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, result)
}

// Webhook handles POST /webhooks/stripe. The signature is verified
// before the payload is parsed; anything unverifiable is rejected with
// 400 and never processed.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Could not read payload")
		return
	}

	event, err := stripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.service.WebhookSecret())
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook rejected")
		response.BadRequest(w, "Invalid signature")
		return
	}

	if err := h.service.ProcessEvent(r.Context(), event); err != nil {
		// Non-2xx makes Stripe redeliver; processing is idempotent.
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("stripe event processing failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]bool{"received": true})
}
