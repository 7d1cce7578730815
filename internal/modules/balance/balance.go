// Package balance computes cash balance transitions.
package balance

import (
	"fmt"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Debit returns balance - amount, refusing to go below zero.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return balance, domain.NewValidationError("amount", "debit amount must not be negative")
	}
	if balance.LessThan(amount) {
		return balance, fmt.Errorf("%w: balance %s, required %s", domain.ErrInsufficientFunds, balance, amount)
	}
	return balance.Sub(amount), nil
}

// Credit returns balance + amount.
func Credit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return balance, domain.NewValidationError("amount", "credit amount must not be negative")
	}
	return balance.Add(amount), nil
}

// Apply returns the balance after intent settles: BUY debits, SELL credits.
func Apply(balance decimal.Decimal, intent domain.TradeIntent) (decimal.Decimal, error) {
	switch intent.Side {
	case domain.SideBuy:
		return Debit(balance, intent.Total())
	case domain.SideSell:
		return Credit(balance, intent.Total())
	}
	return balance, domain.NewValidationError("side", "must be BUY or SELL")
}
