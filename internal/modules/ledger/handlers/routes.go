package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/aristath/tradeledger/internal/api"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Use(api.RequireAccount)

		r.Get("/reconcile", h.HandleReconcile)
	})
}
