package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/aristath/tradeledger/internal/api"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Use(api.RequireAccount)

		r.Get("/", h.HandleGetPortfolio)
		r.Get("/value", h.HandleGetValue)
		r.Get("/position/{symbol}", h.HandleGetPosition)
	})
}
