package trading

import (
	"fmt"

	"github.com/aristath/tradeledger/internal/domain"
)

// MaxSymbolLength bounds a normalized ticker symbol.
const MaxSymbolLength = 16

// ParseIntent normalizes a boundary payload into a typed intent.
// Checks run in order: symbol, side, quantity, price. The first failure wins.
func ParseIntent(raw domain.RawIntent) (domain.TradeIntent, error) {
	symbol, err := parseSymbol(raw.Symbol)
	if err != nil {
		return domain.TradeIntent{}, err
	}

	side, err := domain.ParseSide(raw.SideValue())
	if err != nil {
		return domain.TradeIntent{}, err
	}

	intent := domain.TradeIntent{
		Symbol:   symbol,
		Side:     side,
		Quantity: raw.Quantity,
		Price:    raw.Price,
	}
	if err := checkAmounts(intent); err != nil {
		return domain.TradeIntent{}, err
	}
	return intent, nil
}

// Validate checks intent against static rules and the account snapshot.
// It never mutates the snapshot.
func Validate(snapshot domain.Account, intent domain.TradeIntent) error {
	if _, err := parseSymbol(intent.Symbol); err != nil {
		return err
	}
	if intent.Side != domain.SideBuy && intent.Side != domain.SideSell {
		return domain.NewValidationError("side", "must be BUY or SELL")
	}
	if err := checkAmounts(intent); err != nil {
		return err
	}

	switch intent.Side {
	case domain.SideBuy:
		total := intent.Total()
		if snapshot.Balance.LessThan(total) {
			return fmt.Errorf("%w: balance %s, required %s",
				domain.ErrInsufficientFunds, snapshot.Balance.StringFixed(2), total.StringFixed(2))
		}
	case domain.SideSell:
		position, ok := snapshot.Position(intent.Symbol)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNoSuchPosition, domain.NormalizeSymbol(intent.Symbol))
		}
		if position.Quantity.LessThan(intent.Quantity) {
			return fmt.Errorf("%w: hold %s %s, selling %s",
				domain.ErrInsufficientShares, position.Quantity, position.Symbol, intent.Quantity)
		}
	}
	return nil
}

func parseSymbol(s string) (string, error) {
	symbol := domain.NormalizeSymbol(s)
	if symbol == "" {
		return "", domain.NewValidationError("symbol", "must not be empty")
	}
	if len(symbol) > MaxSymbolLength {
		return "", domain.NewValidationError("symbol", fmt.Sprintf("must be at most %d characters", MaxSymbolLength))
	}
	for _, r := range symbol {
		if r == ' ' || r == '\t' || r == '\n' || r == '/' {
			return "", domain.NewValidationError("symbol", "contains an invalid character")
		}
	}
	return symbol, nil
}

func checkAmounts(intent domain.TradeIntent) error {
	if !intent.Quantity.IsPositive() {
		return domain.NewValidationError("quantity", "must be positive")
	}
	if !intent.Price.IsPositive() {
		return domain.NewValidationError("price", "must be positive")
	}
	return nil
}
