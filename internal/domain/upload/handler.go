package upload

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/middleware"
	"github.com/petgroove/petgroove-api/internal/pkg/imaging"
	"github.com/petgroove/petgroove-api/internal/pkg/response"
)

// MaxUploadSize caps pet photo uploads at 10 MB
const MaxUploadSize = 10 * 1024 * 1024

// Handler handles upload HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates upload handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Upload handles POST /upload (multipart, field "file")
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 10MB limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "Missing file field")
		return
	}
	defer file.Close()

	if !imaging.ValidateType(header.Filename) {
		response.BadRequest(w, "Only JPEG, PNG, GIF and WebP images are accepted")
		return
	}
	if !imaging.ValidateSize(header.Size, MaxUploadSize) {
		response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 10MB limit")
		return
	}

	result, err := h.service.Store(r.Context(), userID, header.Filename, file)
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			response.BadRequest(w, "File is not a valid image")
			return
		}
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Str("filename", header.Filename).
			Msg("pet photo upload failed")
		response.InternalError(w)
		return
	}

	response.Created(w, result)
}
