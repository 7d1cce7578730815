// Package ledger computes holding state from trades.
// Every function is pure: callers own persistence.
package ledger

import (
	"fmt"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ApplyBuy returns the position after buying qty at price.
// existing may be nil when the account holds no such symbol.
func ApplyBuy(existing *domain.Position, symbol string, qty, price decimal.Decimal) domain.Position {
	if existing == nil {
		return domain.Position{
			Symbol:      domain.NormalizeSymbol(symbol),
			Quantity:    qty,
			AverageCost: price,
		}
	}

	newQty := existing.Quantity.Add(qty)
	cost := existing.AverageCost.Mul(existing.Quantity).Add(price.Mul(qty))

	return domain.Position{
		Symbol:      existing.Symbol,
		Quantity:    newQty,
		AverageCost: DivRoundHalfEven(cost, newQty, CostPrecision),
	}
}

// ApplySell returns the position after selling qty. removed is true when the
// resulting quantity is zero, in which case the returned position must be dropped.
// The caller guarantees position.Quantity >= qty.
func ApplySell(position domain.Position, qty decimal.Decimal) (next domain.Position, removed bool) {
	newQty := position.Quantity.Sub(qty)
	if newQty.IsZero() {
		return domain.Position{}, true
	}
	return domain.Position{
		Symbol:      position.Symbol,
		Quantity:    newQty,
		AverageCost: position.AverageCost,
	}, false
}

// Apply returns the full position set after intent settles against positions.
// The input slice is not modified.
func Apply(positions []domain.Position, intent domain.TradeIntent) ([]domain.Position, error) {
	symbol := domain.NormalizeSymbol(intent.Symbol)
	out := make([]domain.Position, 0, len(positions)+1)
	var current *domain.Position
	for i := range positions {
		if positions[i].Symbol == symbol {
			p := positions[i]
			current = &p
			continue
		}
		out = append(out, positions[i])
	}

	switch intent.Side {
	case domain.SideBuy:
		out = append(out, ApplyBuy(current, symbol, intent.Quantity, intent.Price))
	case domain.SideSell:
		if current == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoSuchPosition, symbol)
		}
		if current.Quantity.LessThan(intent.Quantity) {
			return nil, fmt.Errorf("%w: hold %s %s, selling %s",
				domain.ErrInsufficientShares, current.Quantity, symbol, intent.Quantity)
		}
		if next, removed := ApplySell(*current, intent.Quantity); !removed {
			out = append(out, next)
		}
	default:
		return nil, domain.NewValidationError("side", "must be BUY or SELL")
	}

	domain.SortPositions(out)
	return out, nil
}
