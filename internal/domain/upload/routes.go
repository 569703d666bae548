package upload

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the upload router. Uploads require auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.Upload)

	return r
}
