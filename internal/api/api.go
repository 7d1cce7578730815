// Package api holds request-scoped helpers shared by the HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/domain"
)

// AccountHeader carries the account id verified by the upstream authentication layer.
const AccountHeader = "X-Account-ID"

type accountKey struct{}

// WithAccountID returns ctx carrying accountID.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey{}, accountID)
}

// AccountID returns the account id stored by WithAccountID, or "".
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountKey{}).(string)
	return id
}

// AccountMiddleware copies AccountHeader into the request context.
// Requests without the header pass through; handlers that need an account
// use RequireAccount.
func AccountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(AccountHeader)); id != "" {
			r = r.WithContext(WithAccountID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount rejects requests that carry no account id with 401.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountID(r.Context()) == "" {
			WriteJSON(w, zerolog.Nop(), http.StatusUnauthorized, ErrorResponse{
				Error: "missing " + AccountHeader + " header",
				Code:  "unauthenticated",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string      `json:"error"`
	Code  string      `json:"code"`
	Field string      `json:"field,omitempty"`
	Trade interface{} `json:"trade,omitempty"`
}

// StatusFor maps an engine or store error to an HTTP status and a stable code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientShares):
		return http.StatusUnprocessableEntity, "insufficient_shares"
	case errors.Is(err, domain.ErrNoSuchPosition):
		return http.StatusUnprocessableEntity, "no_such_position"
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, domain.ErrTradeNotFound):
		return http.StatusNotFound, "trade_not_found"
	case errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound, "position_not_found"
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict, "account_exists"
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError maps err to a status and writes an ErrorResponse.
// Server-side failures are logged; client errors are not.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	WriteErrorWithTrade(w, log, err, nil)
}

// WriteErrorWithTrade is WriteError with the affected trade record attached.
func WriteErrorWithTrade(w http.ResponseWriter, log zerolog.Logger, err error, trade interface{}) {
	status, code := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code, Trade: trade}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	WriteJSON(w, log, status, resp)
}
