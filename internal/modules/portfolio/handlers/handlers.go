// Package handlers provides HTTP handlers for portfolio queries.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
)

// PortfolioReader is the read side used by the handlers
type PortfolioReader interface {
	GetSnapshot(ctx context.Context, accountID string) (portfolio.Snapshot, error)
	GetPosition(ctx context.Context, accountID, symbol string) (domain.Position, error)
	GetPortfolioValue(ctx context.Context, accountID string, lookup domain.PriceLookup) (portfolio.PortfolioValue, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service PortfolioReader
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service PortfolioReader, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPortfolio returns balance and holdings
// GET /api/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetSnapshot(r.Context(), api.AccountID(r.Context()))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusOK, snapshot)
}

// HandleGetValue values the portfolio at quoted prices
// GET /api/portfolio/value?quote=AAPL:160&quote=MSFT:410 (or quote=AAPL:160,MSFT:410)
func (h *Handler) HandleGetValue(w http.ResponseWriter, r *http.Request) {
	var pairs []string
	for _, q := range r.URL.Query()["quote"] {
		for _, pair := range strings.Split(q, ",") {
			if pair = strings.TrimSpace(pair); pair != "" {
				pairs = append(pairs, pair)
			}
		}
	}
	prices, err := domain.ParsePriceMap(pairs)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	value, err := h.service.GetPortfolioValue(r.Context(), api.AccountID(r.Context()), prices)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusOK, value)
}

// HandleGetPosition returns the holding of one symbol
// GET /api/portfolio/position/{symbol}
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.service.GetPosition(r.Context(), api.AccountID(r.Context()), chi.URLParam(r, "symbol"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusOK, position)
}
