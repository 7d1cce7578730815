package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/accounts"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAccount() domain.Account {
	return domain.Account{
		ID:      "acc-1",
		Balance: dec("9137.50"),
		Positions: []domain.Position{
			{Symbol: "AAPL", Quantity: dec("6"), AverageCost: dec("150.25")},
			{Symbol: "MSFT", Quantity: dec("2"), AverageCost: dec("300")},
		},
	}
}

func TestValue_PricedAndUnpriced(t *testing.T) {
	v := Value(testAccount(), domain.PriceMap{"AAPL": dec("160")})

	require.Len(t, v.Holdings, 2)
	aapl, msft := v.Holdings[0], v.Holdings[1]

	assert.True(t, aapl.Priced)
	assert.True(t, aapl.Value.Equal(dec("960")))
	assert.True(t, aapl.CostBasis.Equal(dec("901.50")))
	assert.True(t, aapl.UnrealizedPnL.Equal(dec("58.50")))

	assert.False(t, msft.Priced)
	assert.True(t, msft.Price.Equal(dec("300")))
	assert.True(t, msft.Value.Equal(dec("600")))
	assert.True(t, msft.UnrealizedPnL.IsZero())

	assert.True(t, v.PositionsValue.Equal(dec("1560")))
	assert.True(t, v.TotalValue.Equal(dec("10697.50")))

	weights := v.CashWeight
	for _, h := range v.Holdings {
		weights += h.Weight
	}
	assert.InDelta(t, 1.0, weights, 1e-9)

	// (960/1560)^2 + (600/1560)^2
	assert.InDelta(t, 0.5266272, v.Concentration, 1e-6)
}

func TestValue_Edges(t *testing.T) {
	cashOnly := Value(domain.Account{ID: "a", Balance: dec("100")}, nil)
	assert.Empty(t, cashOnly.Holdings)
	assert.Equal(t, 1.0, cashOnly.CashWeight)
	assert.Equal(t, 0.0, cashOnly.Concentration)
	assert.True(t, cashOnly.TotalValue.Equal(dec("100")))

	single := Value(domain.Account{ID: "a", Balance: dec("0"), Positions: []domain.Position{
		{Symbol: "AAPL", Quantity: dec("1"), AverageCost: dec("10")},
	}}, domain.PriceMap{})
	assert.InDelta(t, 1.0, single.Concentration, 1e-12)
	assert.InDelta(t, 1.0, single.Holdings[0].Weight, 1e-12)

	empty := Value(domain.Account{ID: "a", Balance: dec("0")}, nil)
	assert.Equal(t, 0.0, empty.CashWeight)
}

func TestPortfolioService(t *testing.T) {
	store := accounts.NewMemoryRepository()
	account := testAccount()
	account.CreatedAt = time.Now().UTC()
	require.NoError(t, store.CreateAccount(context.Background(), account))

	svc := NewPortfolioService(store, zerolog.Nop())
	ctx := context.Background()

	snap, err := svc.GetSnapshot(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(dec("9137.50")))
	assert.Len(t, snap.Positions, 2)

	p, err := svc.GetPosition(ctx, "acc-1", "aapl")
	require.NoError(t, err)
	assert.True(t, p.Quantity.Equal(dec("6")))

	_, err = svc.GetPosition(ctx, "acc-1", "TSLA")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, err = svc.GetPosition(ctx, "nobody", "AAPL")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	value, err := svc.GetPortfolioValue(ctx, "acc-1", domain.PriceMap{})
	require.NoError(t, err)
	assert.True(t, value.TotalValue.Equal(dec("9137.50").Add(dec("901.50")).Add(dec("600"))))
	assert.False(t, value.AsOf.IsZero())
}
