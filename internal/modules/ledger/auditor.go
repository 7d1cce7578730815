package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/domain"
)

// Auditor reconciles stored accounts against their trade history.
type Auditor struct {
	store domain.AccountStore
	log   zerolog.Logger
}

// NewAuditor creates an auditor over store.
func NewAuditor(store domain.AccountStore, log zerolog.Logger) *Auditor {
	return &Auditor{
		store: store,
		log:   log.With().Str("service", "ledger_auditor").Logger(),
	}
}

// ReconcileAccount replays the full trade history of an account and
// returns every symbol whose stored holding disagrees with it.
func (a *Auditor) ReconcileAccount(ctx context.Context, accountID string) ([]Discrepancy, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	trades, err := a.store.ListTrades(ctx, accountID, domain.TradeQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for %s: %w", accountID, err)
	}
	out := Reconcile(account, trades)
	a.log.Debug().
		Str("account_id", accountID).
		Int("trades", len(trades)).
		Int("discrepancies", len(out)).
		Msg("Account reconciled")
	return out, nil
}

// ReconcileAll reconciles every account the lister knows about and returns
// the discrepancies keyed by account id. Consistent accounts are omitted.
func (a *Auditor) ReconcileAll(ctx context.Context, lister domain.AccountLister) (map[string][]Discrepancy, error) {
	ids, err := lister.ListAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	report := make(map[string][]Discrepancy)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d, err := a.ReconcileAccount(ctx, id)
		if err != nil {
			return report, err
		}
		if len(d) > 0 {
			report[id] = d
		}
	}
	return report, nil
}
