package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/accounts"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
	"github.com/aristath/tradeledger/internal/modules/settlement"
	"github.com/aristath/tradeledger/internal/modules/trading"
)

func setupRouter(t *testing.T) (*chi.Mux, *accounts.MemoryRepository) {
	t.Helper()
	store := accounts.NewMemoryRepository()
	require.NoError(t, store.CreateAccount(context.Background(), domain.Account{
		ID:        "acc-1",
		Balance:   decimal.NewFromInt(10000),
		Positions: []domain.Position{},
		CreatedAt: time.Now().UTC(),
	}))

	engine := settlement.NewEngine(store, trading.NewRecorder(nil, nil), nil, settlement.DefaultConfig(), zerolog.Nop())
	h := NewTradingHandlers(engine, portfolio.NewPortfolioService(store, zerolog.Nop()), zerolog.Nop())

	r := chi.NewRouter()
	r.Use(api.AccountMiddleware)
	r.Route("/api", h.RegisterRoutes)
	return r, store
}

func do(r http.Handler, method, path, accountID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if accountID != "" {
		req.Header.Set(api.AccountHeader, accountID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmitTrade(t *testing.T) {
	r, store := setupRouter(t)

	rec := do(r, http.MethodPost, "/api/trades", "acc-1", map[string]interface{}{
		"symbol": "aapl", "type": "BUY", "quantity": 10, "price": 150.25,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var trade domain.TradeRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trade))
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, domain.StatusCompleted, trade.Status)
	assert.True(t, trade.TotalAmount.Equal(decimal.RequireFromString("1502.5")))

	account, err := store.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("8497.50")))
}

func TestHandleSubmitTrade_Errors(t *testing.T) {
	r, _ := setupRouter(t)

	t.Run("missing account header", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/trades", "", map[string]interface{}{"symbol": "AAPL"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/trades", bytes.NewBufferString("{"))
		req.Header.Set(api.AccountHeader, "acc-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/trades", "acc-1", map[string]interface{}{
			"symbol": "AAPL", "side": "HOLD", "quantity": 1, "price": 1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body api.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "side", body.Field)
	})

	t.Run("business rejection carries failed trade", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/trades", "acc-1", map[string]interface{}{
			"symbol": "AAPL", "side": "SELL", "quantity": 1, "price": 1,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var body struct {
			Code  string             `json:"code"`
			Trade domain.TradeRecord `json:"trade"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "no_such_position", body.Code)
		assert.Equal(t, domain.StatusFailed, body.Trade.Status)
	})

	t.Run("unknown account", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/trades", "ghost", map[string]interface{}{
			"symbol": "AAPL", "side": "BUY", "quantity": 1, "price": 1,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleGetTrades(t *testing.T) {
	r, _ := setupRouter(t)
	for i := 0; i < 3; i++ {
		rec := do(r, http.MethodPost, "/api/trades", "acc-1", map[string]interface{}{
			"symbol": "MSFT", "side": "buy", "quantity": "1", "price": "10",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(r, http.MethodGet, "/api/trades?limit=2", "acc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page TradesPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Trades, 2)
	assert.Equal(t, page.Trades[1].ID, page.NextBefore)

	rec = do(r, http.MethodGet, "/api/trades?before="+page.NextBefore, "acc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rest TradesPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rest))
	assert.Len(t, rest.Trades, 1)
	assert.Empty(t, rest.NextBefore)

	rec = do(r, http.MethodGet, "/api/trades?limit=abc", "acc-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/trades/"+page.Trades[0].ID, "acc-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/trades/"+page.Trades[0].ID, "acc-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
