package generation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the /generate router. All routes require auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.Submit)
	r.Get("/dances", h.ListDances)
	r.Get("/{id}/status", h.GetStatus)
	r.Get("/{id}/stream", h.Stream)

	return r
}
