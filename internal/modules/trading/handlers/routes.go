package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/aristath/tradeledger/internal/api"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Use(api.RequireAccount)

		r.Post("/", h.HandleSubmitTrade)
		r.Get("/", h.HandleGetTrades)
		if h.stream != nil {
			r.Get("/stream", h.stream.ServeHTTP)
		}
		r.Get("/{id}", h.HandleGetTrade)
	})
}
