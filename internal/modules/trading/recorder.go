package trading

import (
	"fmt"
	"time"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/pkg/id"
)

// Recorder assigns identity to trades and drives their status transitions.
// A record in a terminal status never changes again.
type Recorder struct {
	ids *id.Generator
	now func() time.Time
}

// NewRecorder creates a recorder. A nil clock defaults to time.Now in UTC.
func NewRecorder(ids *id.Generator, now func() time.Time) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if ids == nil {
		ids = id.NewGenerator(now)
	}
	return &Recorder{ids: ids, now: now}
}

// Now returns the recorder's clock reading.
func (r *Recorder) Now() time.Time {
	return r.now()
}

// Admit creates a PENDING record for intent.
func (r *Recorder) Admit(accountID string, intent domain.TradeIntent) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:          r.ids.New(),
		AccountID:   accountID,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Quantity:    intent.Quantity,
		Price:       intent.Price,
		TotalAmount: intent.Total(),
		Status:      domain.StatusPending,
		ExecutedAt:  r.now(),
	}
}

// MarkCompleted stamps rec as settled at the commit timestamp.
func (r *Recorder) MarkCompleted(rec *domain.TradeRecord, at time.Time) error {
	return settle(rec, domain.StatusCompleted, "", at)
}

// MarkFailed stamps rec as rejected with reason.
func (r *Recorder) MarkFailed(rec *domain.TradeRecord, reason string, at time.Time) error {
	return settle(rec, domain.StatusFailed, reason, at)
}

// Cancel abandons a PENDING record, e.g. when the account could not be acquired in time.
func (r *Recorder) Cancel(rec *domain.TradeRecord, reason string) error {
	return settle(rec, domain.StatusCancelled, reason, r.now())
}

func settle(rec *domain.TradeRecord, status domain.TradeStatus, reason string, at time.Time) error {
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrAlreadySettled, rec.ID, rec.Status)
	}
	rec.Status = status
	rec.Reason = reason
	rec.ExecutedAt = at.UTC()
	return nil
}
