// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade. Only BUY and SELL exist.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes any casing of "buy"/"sell" to the canonical Side.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	}
	return "", NewValidationError("side", "must be BUY or SELL")
}

// TradeStatus is the lifecycle state of a trade record
type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusCompleted TradeStatus = "COMPLETED"
	StatusFailed    TradeStatus = "FAILED"
	StatusCancelled TradeStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NormalizeSymbol returns the canonical (trimmed, upper case) form of a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Position represents an account's holding of one symbol.
// A Position with zero quantity never exists.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// CostBasis returns quantity * average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// Account is a versioned snapshot of one account's cash and holdings.
type Account struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Position returns the holding for symbol, if any.
func (a Account) Position(symbol string) (Position, bool) {
	symbol = NormalizeSymbol(symbol)
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Clone returns a deep copy so callers can never alias a store's internal slice.
func (a Account) Clone() Account {
	out := a
	out.Positions = ClonePositions(a.Positions)
	return out
}

// ClonePositions copies and sorts a position set by symbol.
func ClonePositions(positions []Position) []Position {
	out := make([]Position, len(positions))
	copy(out, positions)
	SortPositions(out)
	return out
}

// SortPositions orders positions by symbol in place.
func SortPositions(positions []Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
}

// TradeRecord is one entry of the append-only trade history.
type TradeRecord struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      TradeStatus     `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	ExecutedAt  time.Time       `json:"executed_at"`
	// Sequence is the account version a COMPLETED record committed, so it
	// orders settlements even when ids were minted by different processes.
	// Zero for records that never touched the account.
	Sequence int64 `json:"sequence,omitempty"`
}

// TradeIntent is a fully typed, statically validated request to trade.
type TradeIntent struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Total returns quantity * price.
func (i TradeIntent) Total() decimal.Decimal {
	return i.Quantity.Mul(i.Price)
}

// RawIntent is the unvalidated payload received at the boundary.
// Type is accepted as an alias of Side.
type RawIntent struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Type     string          `json:"type,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// SideValue returns Side, falling back to Type.
func (r RawIntent) SideValue() string {
	if strings.TrimSpace(r.Side) != "" {
		return r.Side
	}
	return r.Type
}
