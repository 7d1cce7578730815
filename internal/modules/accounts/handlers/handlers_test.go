package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/accounts"
)

func setupRouter() *chi.Mux {
	svc := accounts.NewService(accounts.NewMemoryRepository(), nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Use(api.AccountMiddleware)
	r.Route("/api", NewHandler(svc, zerolog.Nop()).RegisterRoutes)
	return r
}

func post(r http.Handler, body, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/accounts", bytes.NewBufferString(body))
	if accountID != "" {
		req.Header.Set(api.AccountHeader, accountID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleOpenAccount(t *testing.T) {
	r := setupRouter()

	rec := post(r, "", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var account domain.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
	assert.NotEmpty(t, account.ID)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(10000)))

	rec = post(r, `{"initial_balance":"250.50"}`, "user-7")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
	assert.Equal(t, "user-7", account.ID)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("250.50")))

	assert.Equal(t, http.StatusConflict, post(r, "{}", "user-7").Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"initial_balance":-5}`, "user-8").Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{`, "user-9").Code)
}
