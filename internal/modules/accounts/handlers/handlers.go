// Package handlers provides HTTP handlers for account opening.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/accounts"
)

// AccountOpener opens accounts
type AccountOpener interface {
	Open(ctx context.Context, initialBalance decimal.Decimal) (domain.Account, error)
	OpenWithID(ctx context.Context, accountID string, initialBalance decimal.Decimal) (domain.Account, error)
}

// Handler handles account HTTP requests
type Handler struct {
	service AccountOpener
	log     zerolog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(service AccountOpener, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "accounts").Logger(),
	}
}

type openRequest struct {
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

// HandleOpenAccount opens an account. With an X-Account-ID header the account
// is created under that identity, otherwise a fresh id is assigned.
// POST /api/accounts
func (h *Handler) HandleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.WriteError(w, h.log, domain.NewValidationError("body", "malformed JSON: "+err.Error()))
		return
	}
	initial := accounts.DefaultInitialBalance
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}

	var (
		account domain.Account
		err     error
	)
	if id := api.AccountID(r.Context()); id != "" {
		account, err = h.service.OpenWithID(r.Context(), id, initial)
	} else {
		account, err = h.service.Open(r.Context(), initial)
	}
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, h.log, http.StatusCreated, account)
}

// RegisterRoutes registers all account routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.HandleOpenAccount)
}
