package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/tradeledger/internal/domain"
)

// flakyStore fails the first N commits with a configured error.
type flakyStore struct {
	domain.AccountStore

	mu          sync.Mutex
	failures    int
	failWith    error
	commits     atomic.Int64
	commitDelay time.Duration
	onCommit    func()
}

func newFlakyStore(inner domain.AccountStore) *flakyStore {
	return &flakyStore{AccountStore: inner}
}

func (s *flakyStore) failCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failWith = err
}

func (s *flakyStore) CommitAccountUpdate(ctx context.Context, update domain.AccountUpdate) error {
	s.commits.Add(1)
	if s.onCommit != nil {
		s.onCommit()
	}
	if s.commitDelay > 0 {
		select {
		case <-time.After(s.commitDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		err := s.failWith
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.AccountStore.CommitAccountUpdate(ctx, update)
}

// blockingStore parks GetAccount for one account until unblocked.
type blockingStore struct {
	domain.AccountStore

	mu      sync.Mutex
	blocked string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore(inner domain.AccountStore) *blockingStore {
	return &blockingStore{
		AccountStore: inner,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (s *blockingStore) block(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = accountID
}

func (s *blockingStore) unblock() {
	close(s.release)
}

func (s *blockingStore) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	s.mu.Lock()
	blocked := s.blocked == accountID
	s.mu.Unlock()

	if blocked {
		first := false
		s.once.Do(func() { first = true })
		if first {
			close(s.entered)
			<-s.release
		}
	}
	return s.AccountStore.GetAccount(ctx, accountID)
}
