package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/middleware"
	"github.com/petgroove/petgroove-api/internal/pkg/response"
	"github.com/petgroove/petgroove-api/internal/pkg/validator"
)

// Handler handles generation HTTP requests
type Handler struct {
	service  *Service
	streamer *Streamer
}

// NewHandler creates generation handler
func NewHandler(service *Service, streamer *Streamer) *Handler {
	return &Handler{service: service, streamer: streamer}
}

// Submit handles POST /generate
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	result, err := h.service.Submit(r.Context(), userID, &req)
	if err != nil {
		var insufficient *InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			response.ErrorWithDetails(w, http.StatusBadRequest, "INSUFFICIENT_CREDITS", "Not enough credits", map[string]string{
				"required":  strconv.Itoa(insufficient.Required),
				"available": strconv.Itoa(insufficient.Available),
				"shortfall": strconv.Itoa(insufficient.Shortfall()),
			})
		case errors.Is(err, ErrInvalidDanceType):
			response.BadRequest(w, "Unknown dance type")
		case errors.Is(err, ErrInvalidImageURL):
			response.BadRequest(w, "Pet image URL is required")
		case errors.Is(err, ErrPromptGeneration):
			response.BadGateway(w, "Could not generate a dance prompt, please try again")
		default:
			log.Error().
				Err(err).
				Str("user_id", userID.String()).
				Str("dance_type", req.DanceType).
				Msg("generation submit failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, result)
}

// GetStatus handles GET /generate/{id}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid generation ID")
		return
	}

	g, err := h.service.GetForUser(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Generation not found")
			return
		}
		log.Error().Err(err).Str("generation_id", id.String()).Msg("failed to load generation")
		response.InternalError(w)
		return
	}

	response.OK(w, NewGenerationResponse(g))
}

// Stream handles GET /generate/{id}/stream (websocket)
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid generation ID")
		return
	}

	g, err := h.service.GetForUser(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Generation not found")
			return
		}
		response.InternalError(w)
		return
	}

	h.streamer.Serve(w, r, g)
}

// ListMine handles GET /account/generations
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	gens, err := h.service.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list generations")
		response.InternalError(w)
		return
	}

	out := make([]GenerationResponse, 0, len(gens))
	for i := range gens {
		out = append(out, NewGenerationResponse(&gens[i]))
	}

	response.OK(w, out)
}

// ListDances handles GET /generate/dances
func (h *Handler) ListDances(w http.ResponseWriter, r *http.Request) {
	response.OK(w, Dances)
}
