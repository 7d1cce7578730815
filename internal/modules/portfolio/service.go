package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/tradeledger/internal/domain"
)

// Holding is one valued position of a portfolio.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	Price         decimal.Decimal `json:"price"`
	Value         decimal.Decimal `json:"value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// Weight is Value as a fraction of TotalValue.
	Weight float64 `json:"weight"`
	// Priced is false when no quote was supplied and Price fell back to AverageCost.
	Priced bool `json:"priced"`
}

// PortfolioValue is a valuation of an account at supplied prices.
type PortfolioValue struct {
	AccountID      string          `json:"account_id"`
	Balance        decimal.Decimal `json:"balance"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	CashWeight     float64         `json:"cash_weight"`
	// Concentration is the Herfindahl index of position weights within PositionsValue:
	// 1 for a single holding, 1/n for n equal holdings, 0 with no holdings.
	Concentration float64   `json:"concentration"`
	Holdings      []Holding `json:"holdings"`
	AsOf          time.Time `json:"as_of"`
}

// Snapshot is the balance and raw holdings of an account.
type Snapshot struct {
	AccountID string            `json:"account_id"`
	Balance   decimal.Decimal   `json:"balance"`
	Positions []domain.Position `json:"portfolio"`
	Version   int64             `json:"version"`
}

// PortfolioService answers read-only portfolio and trade history queries.
type PortfolioService struct {
	store domain.AccountStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(store domain.AccountStore, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("service", "portfolio").Logger(),
	}
}

// GetSnapshot returns the balance and positions of an account
func (s *PortfolioService) GetSnapshot(ctx context.Context, accountID string) (Snapshot, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		AccountID: account.ID,
		Balance:   account.Balance,
		Positions: account.Positions,
		Version:   account.Version,
	}, nil
}

// GetPosition returns the holding of one symbol
func (s *PortfolioService) GetPosition(ctx context.Context, accountID, symbol string) (domain.Position, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Position{}, err
	}
	position, ok := account.Position(symbol)
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, domain.NormalizeSymbol(symbol))
	}
	return position, nil
}

// GetPortfolioValue values an account's holdings at prices from lookup.
func (s *PortfolioService) GetPortfolioValue(ctx context.Context, accountID string, lookup domain.PriceLookup) (PortfolioValue, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return PortfolioValue{}, err
	}
	value := Value(account, lookup)
	value.AsOf = s.now()

	unpriced := 0
	for _, h := range value.Holdings {
		if !h.Priced {
			unpriced++
		}
	}
	if unpriced > 0 {
		s.log.Debug().
			Str("account_id", accountID).
			Int("unpriced", unpriced).
			Msg("Valued holdings without quotes at average cost")
	}
	return value, nil
}

// ListTrades returns trade history, most recent first
func (s *PortfolioService) ListTrades(ctx context.Context, accountID string, query domain.TradeQuery) ([]domain.TradeRecord, error) {
	return s.store.ListTrades(ctx, accountID, query)
}

// GetTrade returns one trade of an account
func (s *PortfolioService) GetTrade(ctx context.Context, accountID, tradeID string) (domain.TradeRecord, error) {
	return s.store.GetTrade(ctx, accountID, tradeID)
}

// Value aggregates account into a PortfolioValue. It is pure; AsOf is left zero.
// A symbol lookup cannot price is valued at its average cost.
func Value(account domain.Account, lookup domain.PriceLookup) PortfolioValue {
	out := PortfolioValue{
		AccountID:      account.ID,
		Balance:        account.Balance,
		PositionsValue: decimal.Zero,
		Holdings:       make([]Holding, 0, len(account.Positions)),
	}

	for _, p := range account.Positions {
		price, priced := decimal.Zero, false
		if lookup != nil {
			price, priced = lookup.Price(p.Symbol)
		}
		if !priced {
			price = p.AverageCost
		}
		value := p.Quantity.Mul(price)
		cost := p.CostBasis()
		out.Holdings = append(out.Holdings, Holding{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AverageCost:   p.AverageCost,
			Price:         price,
			Value:         value,
			CostBasis:     cost,
			UnrealizedPnL: value.Sub(cost),
			Priced:        priced,
		})
		out.PositionsValue = out.PositionsValue.Add(value)
	}
	out.TotalValue = out.Balance.Add(out.PositionsValue)

	if len(out.Holdings) == 0 {
		if out.TotalValue.IsPositive() {
			out.CashWeight = 1
		}
		return out
	}

	values := make([]float64, len(out.Holdings))
	for i, h := range out.Holdings {
		values[i] = h.Value.InexactFloat64()
	}
	total := out.TotalValue.InexactFloat64()
	positionsTotal := floats.Sum(values)

	if total > 0 {
		for i := range out.Holdings {
			out.Holdings[i].Weight = values[i] / total
		}
		out.CashWeight = out.Balance.InexactFloat64() / total
	}
	if positionsTotal > 0 {
		shares := make([]float64, len(values))
		copy(shares, values)
		floats.Scale(1/positionsTotal, shares)
		out.Concentration = floats.Dot(shares, shares)
	}
	return out
}
