package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	testCases := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{in: "BUY", want: SideBuy},
		{in: "buy", want: SideBuy},
		{in: " Sell ", want: SideSell},
		{in: "SELL", want: SideSell},
		{in: "", wantErr: true},
		{in: "short", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSide(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTradeStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestAccount_PositionAndClone(t *testing.T) {
	acct := Account{
		ID:      "acc-1",
		Balance: decimal.NewFromInt(100),
		Positions: []Position{
			{Symbol: "MSFT", Quantity: decimal.NewFromInt(2), AverageCost: decimal.NewFromInt(300)},
			{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AverageCost: decimal.NewFromInt(150)},
		},
	}

	pos, ok := acct.Position(" aapl ")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.CostBasis().Equal(decimal.NewFromInt(1500)))

	_, ok = acct.Position("GOOG")
	assert.False(t, ok)

	clone := acct.Clone()
	assert.Equal(t, "AAPL", clone.Positions[0].Symbol, "clone is sorted by symbol")
	clone.Positions[0].Quantity = decimal.NewFromInt(1)
	assert.Equal(t, "MSFT", acct.Positions[0].Symbol, "original order untouched")
}

func TestRawIntent_SideValue(t *testing.T) {
	assert.Equal(t, "buy", RawIntent{Side: "buy", Type: "SELL"}.SideValue())
	assert.Equal(t, "SELL", RawIntent{Type: "SELL"}.SideValue())
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("settle: %w", ErrInsufficientShares)
	assert.True(t, IsBusinessRejection(wrapped))
	assert.False(t, IsRetryable(wrapped))

	assert.True(t, IsRetryable(fmt.Errorf("commit: %w", ErrVersionConflict)))
	assert.True(t, IsRetryable(ErrPersistence))
	assert.False(t, IsRetryable(ErrTimeout))

	var vErr *ValidationError
	err := NewValidationError("price", "must be positive")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "price", vErr.Field)
	assert.Equal(t, "invalid price: must be positive", err.Error())
}

func TestParsePriceMap(t *testing.T) {
	prices, err := ParsePriceMap([]string{"aapl:160.00", "MSFT: 300.5"})
	require.NoError(t, err)

	p, ok := prices.Price("AAPL")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(160)))

	p, ok = prices.Price("msft")
	require.True(t, ok)
	assert.Equal(t, "300.5", p.String())

	_, err = ParsePriceMap([]string{"AAPL"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParsePriceMap([]string{"AAPL:-1"})
	assert.ErrorIs(t, err, ErrValidation)
}
