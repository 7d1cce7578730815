// Package handlers provides HTTP handlers for trade submission and history.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// TradeSubmitter settles trade intents
type TradeSubmitter interface {
	SubmitTrade(ctx context.Context, accountID string, raw domain.RawIntent) (domain.TradeRecord, error)
}

// TradeReader reads trade history
type TradeReader interface {
	ListTrades(ctx context.Context, accountID string, query domain.TradeQuery) ([]domain.TradeRecord, error)
	GetTrade(ctx context.Context, accountID, tradeID string) (domain.TradeRecord, error)
}

// TradingHandlers contains HTTP handlers for trading API
type TradingHandlers struct {
	submitter TradeSubmitter
	reader    TradeReader
	stream    http.Handler
	log       zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(submitter TradeSubmitter, reader TradeReader, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		submitter: submitter,
		reader:    reader,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

// SetStreamHandler mounts a live trade stream at GET /api/trades/stream.
func (h *TradingHandlers) SetStreamHandler(stream http.Handler) {
	h.stream = stream
}

// TradesPage is the response of GET /api/trades
type TradesPage struct {
	Trades     []domain.TradeRecord `json:"trades"`
	NextBefore string               `json:"next_before,omitempty"`
}

// HandleSubmitTrade settles a trade intent
// POST /api/trades
func (h *TradingHandlers) HandleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawIntent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		api.WriteError(w, h.log, domain.NewValidationError("body", "malformed JSON: "+err.Error()))
		return
	}

	accountID := api.AccountID(r.Context())
	rec, err := h.submitter.SubmitTrade(r.Context(), accountID, raw)
	if err != nil {
		if rec.ID != "" {
			api.WriteErrorWithTrade(w, h.log, err, rec)
			return
		}
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, h.log, http.StatusCreated, rec)
}

// HandleGetTrades returns trade history, most recent first
// GET /api/trades?limit=50&before=<trade id>
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			api.WriteError(w, h.log, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = min(parsed, maxLimit)
	}

	query := domain.TradeQuery{Limit: limit, Before: r.URL.Query().Get("before")}
	trades, err := h.reader.ListTrades(r.Context(), api.AccountID(r.Context()), query)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	page := TradesPage{Trades: trades}
	if len(trades) == limit {
		page.NextBefore = trades[len(trades)-1].ID
	}
	api.WriteJSON(w, h.log, http.StatusOK, page)
}

// HandleGetTrade returns one trade
// GET /api/trades/{id}
func (h *TradingHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.reader.GetTrade(r.Context(), api.AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, domain.ErrTradeNotFound) {
			h.log.Warn().Err(err).Msg("Failed to get trade")
		}
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusOK, trade)
}
