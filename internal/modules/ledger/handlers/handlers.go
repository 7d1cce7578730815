// Package handlers provides HTTP handlers for ledger reconciliation.
package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/modules/ledger"
)

// Reconciler checks stored holdings against trade history
type Reconciler interface {
	ReconcileAccount(ctx context.Context, accountID string) ([]ledger.Discrepancy, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	reconciler Reconciler
	log        zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(reconciler Reconciler, log zerolog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		log:        log.With().Str("handler", "ledger").Logger(),
	}
}

// ReconcileResponse is the body of GET /api/ledger/reconcile
type ReconcileResponse struct {
	AccountID     string               `json:"account_id"`
	Consistent    bool                 `json:"consistent"`
	Discrepancies []ledger.Discrepancy `json:"discrepancies"`
}

// HandleReconcile replays the account's settled trades and reports holdings that disagree
// GET /api/ledger/reconcile
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	accountID := api.AccountID(r.Context())
	discrepancies, err := h.reconciler.ReconcileAccount(r.Context(), accountID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []ledger.Discrepancy{}
	}
	if len(discrepancies) > 0 {
		h.log.Warn().Str("account_id", accountID).Int("discrepancies", len(discrepancies)).Msg("Ledger out of balance")
	}

	api.WriteJSON(w, h.log, http.StatusOK, ReconcileResponse{
		AccountID:     accountID,
		Consistent:    len(discrepancies) == 0,
		Discrepancies: discrepancies,
	})
}
