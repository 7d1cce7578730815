package domain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// AccountUpdate is the triple committed atomically by the settlement engine:
// new balance, full new position set and the completed trade record.
type AccountUpdate struct {
	AccountID       string
	ExpectedVersion int64
	Balance         decimal.Decimal
	Positions       []Position
	Trade           TradeRecord
}

// TradeQuery selects a page of trade history, most recent first.
// Before is an exclusive cursor (a trade id); Limit <= 0 means no limit.
type TradeQuery struct {
	Limit  int
	Before string
}

// AccountStore is the persistence abstraction consumed by the engine.
// Implementations must apply CommitAccountUpdate atomically and reject it with
// ErrVersionConflict when the stored version differs from ExpectedVersion.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountID string) (Account, error)
	CommitAccountUpdate(ctx context.Context, update AccountUpdate) error
	AppendTrade(ctx context.Context, trade TradeRecord) error
	ListTrades(ctx context.Context, accountID string, query TradeQuery) ([]TradeRecord, error)
	GetTrade(ctx context.Context, accountID, tradeID string) (TradeRecord, error)
}

// PriceLookup supplies externally sourced prices for portfolio valuation.
type PriceLookup interface {
	Price(symbol string) (decimal.Decimal, bool)
}

// PriceMap is a PriceLookup backed by a map keyed by symbol.
type PriceMap map[string]decimal.Decimal

// Price implements PriceLookup.
func (m PriceMap) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := m[NormalizeSymbol(symbol)]
	return p, ok
}

// ParsePriceMap parses "SYM:PRICE" pairs into a PriceMap.
func ParsePriceMap(pairs []string) (PriceMap, error) {
	prices := make(PriceMap, len(pairs))
	for _, pair := range pairs {
		symbol, raw, ok := strings.Cut(pair, ":")
		if !ok || NormalizeSymbol(symbol) == "" {
			return nil, NewValidationError("quote", "expected SYMBOL:PRICE, got "+pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !price.IsPositive() {
			return nil, NewValidationError("quote", "price must be a positive number for "+symbol)
		}
		prices[NormalizeSymbol(symbol)] = price
	}
	return prices, nil
}

// AccountLister enumerates stored accounts, for background reconciliation.
type AccountLister interface {
	ListAccountIDs(ctx context.Context) ([]string, error)
}
