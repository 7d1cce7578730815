package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/tradeledger/internal/domain"
)

// lockRegistry hands out one binary semaphore per account. Accounts never
// share a semaphore, so settlements on different accounts never contend.
type lockRegistry struct {
	locks sync.Map // accountID -> chan struct{}
}

func (l *lockRegistry) semaphore(accountID string) chan struct{} {
	if sem, ok := l.locks.Load(accountID); ok {
		return sem.(chan struct{})
	}
	sem, _ := l.locks.LoadOrStore(accountID, make(chan struct{}, 1))
	return sem.(chan struct{})
}

// acquire blocks until the account is free or ctx is done.
func (l *lockRegistry) acquire(ctx context.Context, accountID string) (release func(), err error) {
	sem := l.semaphore(accountID)
	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: account %s: %v", domain.ErrTimeout, accountID, ctx.Err())
	}
}
