package ledger

import (
	"sort"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Discrepancy is a symbol whose stored holding disagrees with settled history.
type Discrepancy struct {
	Symbol         string          `json:"symbol"`
	StoredQuantity decimal.Decimal `json:"stored_quantity"`
	LedgerQuantity decimal.Decimal `json:"ledger_quantity"`
	StoredAvgCost  decimal.Decimal `json:"stored_average_cost"`
	LedgerAvgCost  decimal.Decimal `json:"ledger_average_cost"`
}

// Replay rebuilds the position set from trade history. Only COMPLETED records
// count; records are applied in commit order (Sequence, then id).
func Replay(trades []domain.TradeRecord) []domain.Position {
	settled := make([]domain.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if t.Status == domain.StatusCompleted {
			settled = append(settled, t)
		}
	}
	sort.Slice(settled, func(i, j int) bool {
		if settled[i].Sequence != settled[j].Sequence {
			return settled[i].Sequence < settled[j].Sequence
		}
		return settled[i].ID < settled[j].ID
	})

	var positions []domain.Position
	for _, t := range settled {
		next, err := Apply(positions, domain.TradeIntent{
			Symbol:   t.Symbol,
			Side:     t.Side,
			Quantity: t.Quantity,
			Price:    t.Price,
		})
		if err != nil {
			// A settled sell larger than the replayed holding means history itself
			// is inconsistent; leave positions as they are so Reconcile reports it.
			continue
		}
		positions = next
	}
	return positions
}

// Reconcile compares an account's holdings with the replay of its history.
func Reconcile(account domain.Account, trades []domain.TradeRecord) []Discrepancy {
	replayed := make(map[string]domain.Position)
	for _, p := range Replay(trades) {
		replayed[p.Symbol] = p
	}

	symbols := make(map[string]struct{})
	stored := make(map[string]domain.Position)
	for _, p := range account.Positions {
		stored[p.Symbol] = p
		symbols[p.Symbol] = struct{}{}
	}
	for s := range replayed {
		symbols[s] = struct{}{}
	}

	var out []Discrepancy
	for s := range symbols {
		a, b := stored[s], replayed[s]
		if a.Quantity.Equal(b.Quantity) && a.AverageCost.Equal(b.AverageCost) {
			continue
		}
		out = append(out, Discrepancy{
			Symbol:         s,
			StoredQuantity: a.Quantity,
			LedgerQuantity: b.Quantity,
			StoredAvgCost:  a.AverageCost,
			LedgerAvgCost:  b.AverageCost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
