// Package reportinghttp exposes the receivables reports over HTTP.
package reportinghttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers receivables report endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(5, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Get("/receivables/aging", h.handleAging)
		r.Get("/invoices/{invoiceID}/summary", h.handleSummary)
		r.Get("/dashboard", h.handleDashboard)
		r.With(limiter).Post("/receivables/cache/bump", h.handleBump)
	})
}
