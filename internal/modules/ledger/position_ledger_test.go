package ledger

import (
	"testing"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDivRoundHalfEven(t *testing.T) {
	testCases := []struct {
		name     string
		num, den string
		places   int32
		want     string
	}{
		{name: "exact", num: "10", den: "4", places: 6, want: "2.5"},
		{name: "repeating rounds down", num: "2300", den: "15", places: 6, want: "153.333333"},
		{name: "repeating rounds up", num: "2", den: "3", places: 6, want: "0.666667"},
		{name: "tie to even stays", num: "0.000025", den: "1", places: 5, want: "0.00002"},
		{name: "below half rounds down", num: "0.0000135", den: "1", places: 5, want: "0.00001"},
		{name: "tie odd bumps", num: "0.000015", den: "1", places: 5, want: "0.00002"},
		{name: "tie even stays at 6", num: "1.0000025", den: "1", places: 6, want: "1.000002"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DivRoundHalfEven(d(tc.num), d(tc.den), tc.places)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestApplyBuy_NewPosition(t *testing.T) {
	pos := ApplyBuy(nil, " aapl", d("10"), d("150.25"))

	assert.Equal(t, "AAPL", pos.Symbol)
	assert.True(t, pos.Quantity.Equal(d("10")))
	assert.True(t, pos.AverageCost.Equal(d("150.25")))
}

func TestApplyBuy_WeightedAverage(t *testing.T) {
	first := ApplyBuy(nil, "AAPL", d("10"), d("150"))
	second := ApplyBuy(&first, "AAPL", d("5"), d("160"))

	assert.True(t, second.Quantity.Equal(d("15")))
	assert.Equal(t, "153.333333", second.AverageCost.String())
}

func TestApplyBuy_ManySmallTradesDoNotDrift(t *testing.T) {
	var pos *domain.Position
	for i := 0; i < 1000; i++ {
		next := ApplyBuy(pos, "XYZ", d("0.1"), d("0.1"))
		pos = &next
	}

	assert.True(t, pos.Quantity.Equal(d("100")), "quantity is exact: %s", pos.Quantity)
	assert.True(t, pos.AverageCost.Equal(d("0.1")), "average stays exact: %s", pos.AverageCost)
}

func TestApplySell(t *testing.T) {
	held := domain.Position{Symbol: "AAPL", Quantity: d("15"), AverageCost: d("153.333333")}

	next, removed := ApplySell(held, d("5"))
	require.False(t, removed)
	assert.True(t, next.Quantity.Equal(d("10")))
	assert.True(t, next.AverageCost.Equal(held.AverageCost), "sell must not change average cost")

	_, removed = ApplySell(next, d("10"))
	assert.True(t, removed)
}

func TestApply(t *testing.T) {
	positions := []domain.Position{
		{Symbol: "MSFT", Quantity: d("2"), AverageCost: d("300")},
	}

	t.Run("buy adds sorted position", func(t *testing.T) {
		out, err := Apply(positions, domain.TradeIntent{Symbol: "AAPL", Side: domain.SideBuy, Quantity: d("10"), Price: d("150")})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "AAPL", out[0].Symbol)
		assert.Equal(t, "MSFT", out[1].Symbol)
		assert.Len(t, positions, 1, "input untouched")
	})

	t.Run("full sell removes position", func(t *testing.T) {
		out, err := Apply(positions, domain.TradeIntent{Symbol: "MSFT", Side: domain.SideSell, Quantity: d("2"), Price: d("310")})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("sell without position", func(t *testing.T) {
		_, err := Apply(positions, domain.TradeIntent{Symbol: "AAPL", Side: domain.SideSell, Quantity: d("1"), Price: d("1")})
		assert.ErrorIs(t, err, domain.ErrNoSuchPosition)
	})

	t.Run("oversell", func(t *testing.T) {
		_, err := Apply(positions, domain.TradeIntent{Symbol: "MSFT", Side: domain.SideSell, Quantity: d("3"), Price: d("1")})
		assert.ErrorIs(t, err, domain.ErrInsufficientShares)
	})

	t.Run("unknown side", func(t *testing.T) {
		_, err := Apply(positions, domain.TradeIntent{Symbol: "MSFT", Side: "HOLD", Quantity: d("1"), Price: d("1")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
