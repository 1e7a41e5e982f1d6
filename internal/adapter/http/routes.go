package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Advice
		r.Post("/advice", h.RequestAdvice)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/metrics/advisors", h.AdvisorMetrics)
		r.Get("/advisors", h.ListAdvisors)

		// Funnel
		r.Post("/funnel/events", h.TrackFunnelEvent)
		r.Get("/funnel/summary", h.FunnelSummary)
	})
}
