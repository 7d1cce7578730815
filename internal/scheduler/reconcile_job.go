package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/events"
	"github.com/aristath/tradeledger/internal/modules/ledger"
)

// LedgerAuditor reconciles every stored account
type LedgerAuditor interface {
	ReconcileAll(ctx context.Context, lister domain.AccountLister) (map[string][]ledger.Discrepancy, error)
}

// ReconcileLedgerJob replays trade history for all accounts and raises an
// error event for each account whose holdings drifted.
type ReconcileLedgerJob struct {
	auditor LedgerAuditor
	lister  domain.AccountLister
	events  *events.Manager
	timeout time.Duration
	log     zerolog.Logger
}

// NewReconcileLedgerJob creates a reconcile job. eventManager may be nil.
func NewReconcileLedgerJob(
	auditor LedgerAuditor,
	lister domain.AccountLister,
	eventManager *events.Manager,
	timeout time.Duration,
	log zerolog.Logger,
) *ReconcileLedgerJob {
	return &ReconcileLedgerJob{
		auditor: auditor,
		lister:  lister,
		events:  eventManager,
		timeout: timeout,
		log:     log.With().Str("job", "reconcile_ledger").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileLedgerJob) Name() string {
	return "reconcile_ledger"
}

// Run executes the reconcile job
func (j *ReconcileLedgerJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.auditor.ReconcileAll(ctx, j.lister)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	for accountID, discrepancies := range report {
		symbols := make([]string, 0, len(discrepancies))
		for _, d := range discrepancies {
			symbols = append(symbols, d.Symbol)
		}
		j.log.Error().
			Str("account_id", accountID).
			Strs("symbols", symbols).
			Msg("Holdings disagree with trade history")
		if j.events != nil {
			j.events.EmitError("ledger", fmt.Errorf("account %s out of balance", accountID), map[string]any{
				"account_id": accountID,
				"symbols":    symbols,
			})
		}
	}

	j.log.Info().Int("out_of_balance", len(report)).Msg("Ledger reconciliation completed")
	return nil
}
