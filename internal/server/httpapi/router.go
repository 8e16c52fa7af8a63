package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the report API routes with standard middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{userID}/reports", func(r chi.Router) {
			r.Post("/", h.RunForUser)
			r.Get("/", h.ListReports)
			r.Get("/{reportID}", h.GetReport)
			r.Post("/{reportID}/resend", h.ResendReport)
		})
		r.Post("/batch/run", h.RunBatch)
	})

	return r
}
