package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tradeledger/internal/api"
	"github.com/aristath/tradeledger/internal/events"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// streamMessage is one frame sent to a stream client.
type streamMessage struct {
	Type      events.EventType `json:"type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Data      events.EventData `json:"data,omitempty"`
}

// TradeStreamHandler pushes the caller's settlement events over a websocket.
type TradeStreamHandler struct {
	bus            *events.Bus
	originPatterns []string
	log            zerolog.Logger
}

// NewTradeStreamHandler creates a stream handler reading from bus.
// Cross-origin browser clients must match allowedOrigins; same-host and
// non-browser clients are always accepted.
func NewTradeStreamHandler(bus *events.Bus, allowedOrigins []string, log zerolog.Logger) *TradeStreamHandler {
	return &TradeStreamHandler{
		bus:            bus,
		originPatterns: originPatterns(allowedOrigins),
		log:            log.With().Str("component", "trade_stream").Logger(),
	}
}

// originPatterns turns CORS origins into the host patterns websocket.Accept matches.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

// ServeHTTP handles GET /api/trades/stream. The optional types query
// parameter (comma separated) narrows the event types delivered.
func (h *TradeStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID := api.AccountID(r.Context())
	types := []events.EventType{events.TradeSettled, events.TradeRejected}
	if raw := r.URL.Query().Get("types"); raw != "" {
		types = types[:0]
		for _, t := range strings.Split(raw, ",") {
			types = append(types, events.EventType(strings.ToUpper(strings.TrimSpace(t))))
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Reads are discarded; the returned context ends when the client goes away.
	ctx := conn.CloseRead(r.Context())

	queue := make(chan *events.Event, streamBuffer)
	unsubscribe := h.bus.Subscribe(func(event *events.Event) {
		if event.AccountID != accountID {
			return
		}
		select {
		case queue <- event:
		default:
			h.log.Warn().
				Str("account_id", accountID).
				Str("event_type", string(event.Type)).
				Msg("Stream client too slow, dropping event")
		}
	}, types...)
	defer unsubscribe()

	h.log.Info().Str("account_id", accountID).Msg("Client connected to trade stream")

	if err := h.write(ctx, conn, streamMessage{Type: "CONNECTED", AccountID: accountID, Timestamp: time.Now().UTC()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Str("account_id", accountID).Msg("Client disconnected from trade stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-queue:
			msg := streamMessage{
				Type:      event.Type,
				AccountID: event.AccountID,
				Timestamp: event.Timestamp,
				Data:      event.Data,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				h.log.Debug().Err(err).Str("account_id", accountID).Msg("Stream write failed")
				return
			}
		}
	}
}

func (h *TradeStreamHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
