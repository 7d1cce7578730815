package handlers

import (
	"context"
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
	"github.com/aristath/tradeledger/internal/modules/portfolio"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	store := accounts.NewMemoryRepository()
	require.NoError(t, store.CreateAccount(context.Background(), domain.Account{
		ID:      "acc-1",
		Balance: dec("9137.50"),
		Positions: []domain.Position{
			{Symbol: "AAPL", Quantity: dec("6"), AverageCost: dec("150.25")},
		},
	}))

	h := NewHandler(portfolio.NewPortfolioService(store, zerolog.Nop()), zerolog.Nop())
	r := chi.NewRouter()
	r.Use(api.AccountMiddleware)
	r.Route("/api", h.RegisterRoutes)
	return r
}

func get(r http.Handler, path, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accountID != "" {
		req.Header.Set(api.AccountHeader, accountID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetPortfolio(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/api/portfolio", "acc-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap portfolio.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.True(t, snap.Balance.Equal(dec("9137.50")))
	require.Len(t, snap.Positions, 1)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/portfolio", "").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/portfolio", "ghost").Code)
}

func TestHandleGetValue(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/api/portfolio/value?quote=aapl:160", "acc-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var value portfolio.PortfolioValue
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&value))
	assert.True(t, value.PositionsValue.Equal(dec("960")))
	assert.True(t, value.TotalValue.Equal(dec("10097.50")))
	assert.True(t, value.Holdings[0].Priced)

	rec = get(r, "/api/portfolio/value", "acc-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&value))
	assert.False(t, value.Holdings[0].Priced)
	assert.True(t, value.PositionsValue.Equal(dec("901.50")))

	assert.Equal(t, http.StatusBadRequest, get(r, "/api/portfolio/value?quote=AAPL", "acc-1").Code)
}

func TestHandleGetPosition(t *testing.T) {
	r := setupRouter(t)

	rec := get(r, "/api/portfolio/position/aapl", "acc-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.Position
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.True(t, p.AverageCost.Equal(dec("150.25")))

	assert.Equal(t, http.StatusNotFound, get(r, "/api/portfolio/position/TSLA", "acc-1").Code)
}
