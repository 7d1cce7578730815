package balance

import (
	"testing"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDebit(t *testing.T) {
	got, err := Debit(d("10000"), d("1502.50"))
	require.NoError(t, err)
	assert.Equal(t, "8497.5", got.String())

	got, err = Debit(d("100"), d("100"))
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "exact balance may be spent")

	got, err = Debit(d("100"), d("1500"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, got.Equal(d("100")), "balance unchanged on failure")

	_, err = Debit(d("100"), d("-1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCredit(t *testing.T) {
	got, err := Credit(d("8497.50"), d("640"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("9137.50")))

	_, err = Credit(d("1"), d("-0.01"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApply(t *testing.T) {
	buy := domain.TradeIntent{Symbol: "AAPL", Side: domain.SideBuy, Quantity: d("10"), Price: d("150.25")}
	sell := domain.TradeIntent{Symbol: "AAPL", Side: domain.SideSell, Quantity: d("4"), Price: d("160.00")}

	afterBuy, err := Apply(d("10000"), buy)
	require.NoError(t, err)
	assert.True(t, afterBuy.Equal(d("8497.50")))

	afterSell, err := Apply(afterBuy, sell)
	require.NoError(t, err)
	assert.True(t, afterSell.Equal(d("9137.50")))

	_, err = Apply(d("1"), domain.TradeIntent{Side: "HOLD"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
