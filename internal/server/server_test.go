package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/di"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
)

func setupServer(t *testing.T, allowedOrigins ...string) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.StoreBackend = config.BackendSQLite

	container, _, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	srv := New(Config{Log: zerolog.Nop(), Port: cfg.Port, DevMode: true, Container: container, AllowedOrigins: allowedOrigins})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, accountID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if accountID != "" {
		req.Header.Set(api.AccountHeader, accountID)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_Health(t *testing.T) {
	ts := setupServer(t)
	resp := do(t, ts, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]interface{}](t, resp)["status"])
}

func TestServer_TradeLifecycle(t *testing.T) {
	ts := setupServer(t)

	resp := do(t, ts, http.MethodPost, "/api/accounts", "user-1", `{}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/trades", "user-1", `{"symbol":"AAPL","type":"BUY","quantity":10,"price":150.25}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	buy := decode[domain.TradeRecord](t, resp)
	assert.Equal(t, domain.StatusCompleted, buy.Status)
	assert.Equal(t, "1502.5", buy.TotalAmount.String())

	resp = do(t, ts, http.MethodPost, "/api/trades", "user-1", `{"symbol":"aapl","side":"sell","quantity":4,"price":160}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/trades", "user-1", `{"symbol":"AAPL","side":"SELL","quantity":20,"price":160}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	rejected := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "insufficient_shares", rejected.Code)
	assert.Equal(t, "FAILED", rejected.Trade.(map[string]interface{})["status"])

	resp = do(t, ts, http.MethodPost, "/api/trades", "user-1", `{"symbol":"AAPL","side":"HOLD","quantity":1,"price":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/portfolio", "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[portfolio.Snapshot](t, resp)
	assert.True(t, snap.Balance.Equal(decimal.RequireFromString("9137.50")))
	require.Len(t, snap.Positions, 1)
	assert.True(t, snap.Positions[0].Quantity.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, "150.25", snap.Positions[0].AverageCost.String())

	resp = do(t, ts, http.MethodGet, "/api/trades?limit=2", "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[struct {
		Trades     []domain.TradeRecord `json:"trades"`
		NextBefore string               `json:"next_before"`
	}](t, resp)
	require.Len(t, page.Trades, 2)
	assert.Equal(t, domain.StatusFailed, page.Trades[0].Status)
	assert.NotEmpty(t, page.NextBefore)

	resp = do(t, ts, http.MethodGet, "/api/trades/"+buy.ID, "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, ts, http.MethodGet, "/api/trades/"+buy.ID, "user-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/api/ledger/reconcile", "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]interface{}](t, resp)["consistent"])

	resp = do(t, ts, http.MethodGet, "/api/system/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[SystemStatusResponse](t, resp)
	assert.EqualValues(t, 2, status.Settlement.Settled)
	assert.EqualValues(t, 2, status.Settlement.Rejected)
	assert.Equal(t, config.BackendSQLite, status.StoreBackend)
	assert.NotNil(t, status.Database)
}

func TestServer_RequiresAccount(t *testing.T) {
	ts := setupServer(t)
	for _, path := range []string{"/api/trades", "/api/portfolio", "/api/ledger/reconcile"} {
		resp := do(t, ts, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestServer_TradeStream(t *testing.T) {
	ts := setupServer(t)
	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/api/accounts", "user-1", `{}`).StatusCode)
	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/api/accounts", "user-2", `{}`).StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/trades/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{api.AccountHeader: []string{"user-1"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "CONNECTED", msg["type"])

	// Another account's trade must not reach this stream.
	require.Equal(t, http.StatusCreated,
		do(t, ts, http.MethodPost, "/api/trades", "user-2", `{"symbol":"MSFT","side":"BUY","quantity":1,"price":10}`).StatusCode)
	require.Equal(t, http.StatusCreated,
		do(t, ts, http.MethodPost, "/api/trades", "user-1", `{"symbol":"AAPL","side":"BUY","quantity":1,"price":10}`).StatusCode)

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "TRADE_SETTLED", msg["type"])
	assert.Equal(t, "user-1", msg["account_id"])
	assert.Equal(t, "AAPL", msg["data"].(map[string]interface{})["symbol"])

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestServer_TradeStreamChecksOrigin(t *testing.T) {
	ts := setupServer(t, "https://app.example.com")
	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/api/accounts", "user-1", `{}`).StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/trades/stream"

	dial := func(origin string) (*websocket.Conn, *http.Response, error) {
		return websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{
				api.AccountHeader: []string{"user-1"},
				"Origin":          []string{origin},
			},
		})
	}

	_, resp, err := dial("https://evil.example.net")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial("https://app.example.com")
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "CONNECTED", msg["type"])
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"app.example.com", "localhost:3000", "*.example.org"},
		originPatterns([]string{"https://app.example.com", "http://localhost:3000", "*.example.org"}))
	assert.Empty(t, originPatterns(nil))
}
