package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the subscribe router; the webhook route is mounted
// separately outside /api/v1 and without auth.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.Subscribe)

	return r
}
