// Package settlement applies trade intents to accounts as single atomic
// state transitions: balance, positions and trade record, or nothing.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/events"
	"github.com/aristath/tradeledger/internal/modules/balance"
	"github.com/aristath/tradeledger/internal/modules/ledger"
	"github.com/aristath/tradeledger/internal/modules/trading"
)

// Config tunes retries and time bounds of the engine.
type Config struct {
	// MaxAttempts bounds commit attempts for one intent, including the first.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// LockTimeout bounds the wait for the account's serialization slot.
	// Zero means the caller's context alone decides.
	LockTimeout time.Duration
	// CommitTimeout bounds one commit, which runs detached from the caller's context.
	CommitTimeout time.Duration
	// RecordRejections persists FAILED records for business-rule rejections.
	RecordRejections bool
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      5,
		BaseBackoff:      10 * time.Millisecond,
		MaxBackoff:       500 * time.Millisecond,
		LockTimeout:      5 * time.Second,
		CommitTimeout:    10 * time.Second,
		RecordRejections: true,
	}
}

// Stats are cumulative engine counters.
type Stats struct {
	Settled   int64 `json:"settled"`
	Rejected  int64 `json:"rejected"`
	Retries   int64 `json:"retries"`
	Exhausted int64 `json:"exhausted"`
	TimedOut  int64 `json:"timed_out"`
}

// Engine settles trade intents against an AccountStore.
type Engine struct {
	store    domain.AccountStore
	recorder *trading.Recorder
	events   *events.Manager
	cfg      Config
	locks    lockRegistry
	log      zerolog.Logger

	settled   atomic.Int64
	rejected  atomic.Int64
	retries   atomic.Int64
	exhausted atomic.Int64
	timedOut  atomic.Int64
}

// NewEngine creates a settlement engine. eventManager may be nil.
func NewEngine(
	store domain.AccountStore,
	recorder *trading.Recorder,
	eventManager *events.Manager,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultConfig().CommitTimeout
	}
	return &Engine{
		store:    store,
		recorder: recorder,
		events:   eventManager,
		cfg:      cfg,
		log:      log.With().Str("service", "settlement").Logger(),
	}
}

// SubmitTrade validates and settles raw for accountID.
//
// On success the COMPLETED record is returned. Malformed intents return a
// validation error and no record. Business rejections return the FAILED
// record together with the error. Timeouts return a CANCELLED record and
// exhausted retries a FAILED one; neither is persisted. In every error case
// the account is unchanged.
func (e *Engine) SubmitTrade(ctx context.Context, accountID string, raw domain.RawIntent) (domain.TradeRecord, error) {
	if accountID == "" {
		return domain.TradeRecord{}, domain.NewValidationError("account_id", "must not be empty")
	}

	intent, err := trading.ParseIntent(raw)
	if err != nil {
		e.rejected.Add(1)
		e.log.Warn().Err(err).Str("account_id", accountID).Msg("Rejected malformed trade intent")
		return domain.TradeRecord{}, err
	}

	log := e.log.With().
		Str("account_id", accountID).
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Str("quantity", intent.Quantity.String()).
		Str("price", intent.Price.String()).
		Logger()

	lockCtx := ctx
	if e.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.cfg.LockTimeout)
		defer cancel()
	}
	release, err := e.locks.acquire(lockCtx, accountID)
	if err != nil {
		return e.abandon(e.recorder.Admit(accountID, intent), err, log)
	}
	defer release()

	// Admitted under the account lock, so within one process id order matches
	// settlement order. Sequence carries the order across processes.
	rec := e.recorder.Admit(accountID, intent)
	log = log.With().Str("trade_id", rec.ID).Logger()
	log.Debug().Msg("Trade admitted")

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			e.retries.Add(1)
			delay := Backoff(attempt-1, e.cfg.BaseBackoff, e.cfg.MaxBackoff)
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying settlement")
			if err := sleep(ctx, delay); err != nil {
				return e.abandon(rec, fmt.Errorf("%w: %v", domain.ErrTimeout, err), log)
			}
		}

		snapshot, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return domain.TradeRecord{}, err
			}
			if ctx.Err() != nil {
				return e.abandon(rec, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err()), log)
			}
			lastErr = asPersistence(err)
			continue
		}

		update, err := plan(snapshot, intent)
		if err != nil {
			return e.reject(ctx, rec, err, log)
		}

		completed := *rec
		if err := e.recorder.MarkCompleted(&completed, e.recorder.Now()); err != nil {
			return *rec, err
		}
		completed.Sequence = snapshot.Version + 1
		update.Trade = completed

		if err := e.commit(ctx, update); err != nil {
			if !domain.IsRetryable(err) {
				log.Warn().Err(err).Msg("Settlement aborted")
				return domain.TradeRecord{}, err
			}
			lastErr = err
			continue
		}

		*rec = completed
		e.settled.Add(1)
		log.Info().
			Int("attempts", attempt).
			Str("balance", update.Balance.String()).
			Msg("Trade settled")
		e.emit(accountID, &events.TradeSettledData{
			TradeID:     rec.ID,
			Symbol:      rec.Symbol,
			Side:        string(rec.Side),
			Quantity:    rec.Quantity.String(),
			Price:       rec.Price.String(),
			TotalAmount: rec.TotalAmount.String(),
			Balance:     update.Balance.String(),
			Attempts:    attempt,
		})
		return *rec, nil
	}

	e.exhausted.Add(1)
	if err := e.recorder.MarkFailed(rec, lastErr.Error(), e.recorder.Now()); err != nil {
		log.Debug().Err(err).Msg("Failed to mark trade failed")
	}
	log.Error().Err(lastErr).Int("attempts", e.cfg.MaxAttempts).Msg("Settlement retries exhausted")
	return *rec, fmt.Errorf("settlement failed after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Settled:   e.settled.Load(),
		Rejected:  e.rejected.Load(),
		Retries:   e.retries.Load(),
		Exhausted: e.exhausted.Load(),
		TimedOut:  e.timedOut.Load(),
	}
}

// plan validates intent against snapshot and computes the next account state.
func plan(snapshot domain.Account, intent domain.TradeIntent) (domain.AccountUpdate, error) {
	if err := trading.Validate(snapshot, intent); err != nil {
		return domain.AccountUpdate{}, err
	}
	nextBalance, err := balance.Apply(snapshot.Balance, intent)
	if err != nil {
		return domain.AccountUpdate{}, err
	}
	nextPositions, err := ledger.Apply(snapshot.Positions, intent)
	if err != nil {
		return domain.AccountUpdate{}, err
	}
	return domain.AccountUpdate{
		AccountID:       snapshot.ID,
		ExpectedVersion: snapshot.Version,
		Balance:         nextBalance,
		Positions:       nextPositions,
	}, nil
}

// commit runs the store commit detached from caller cancellation and
// bounded by CommitTimeout.
func (e *Engine) commit(ctx context.Context, update domain.AccountUpdate) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
	defer cancel()

	err := e.store.CommitAccountUpdate(commitCtx, update)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrVersionConflict):
		return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
	case errors.Is(err, domain.ErrAccountNotFound):
		return err
	default:
		return asPersistence(err)
	}
}

func (e *Engine) reject(ctx context.Context, rec *domain.TradeRecord, cause error, log zerolog.Logger) (domain.TradeRecord, error) {
	e.rejected.Add(1)
	if err := e.recorder.MarkFailed(rec, cause.Error(), e.recorder.Now()); err != nil {
		return *rec, err
	}
	log.Warn().Err(cause).Msg("Trade rejected")

	if e.cfg.RecordRejections && domain.IsBusinessRejection(cause) {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CommitTimeout)
		defer cancel()
		if err := e.store.AppendTrade(storeCtx, *rec); err != nil {
			log.Error().Err(err).Msg("Failed to record rejected trade")
		}
	}

	e.emit(rec.AccountID, &events.TradeRejectedData{
		TradeID: rec.ID,
		Symbol:  rec.Symbol,
		Side:    string(rec.Side),
		Reason:  rec.Reason,
	})
	return *rec, cause
}

func (e *Engine) abandon(rec *domain.TradeRecord, cause error, log zerolog.Logger) (domain.TradeRecord, error) {
	e.timedOut.Add(1)
	if err := e.recorder.Cancel(rec, cause.Error()); err != nil {
		log.Debug().Err(err).Msg("Failed to cancel trade")
	}
	log.Warn().Err(cause).Msg("Trade abandoned before settlement")
	return *rec, cause
}

func (e *Engine) emit(accountID string, data events.EventData) {
	if e.events != nil {
		e.events.Emit(accountID, "settlement", data)
	}
}

func asPersistence(err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
