package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/tradeledger/internal/domain"
)

// MemoryRepository is an in-process AccountStore. State is lost on exit.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	trades   map[string][]domain.TradeRecord // accountID -> trades in id order
}

var _ domain.AccountStore = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]domain.Account),
		trades:   make(map[string][]domain.TradeRecord),
	}
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
	}
	r.accounts[account.ID] = account.Clone()
	return nil
}

func (r *MemoryRepository) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	return account.Clone(), nil
}

func (r *MemoryRepository) CommitAccountUpdate(ctx context.Context, update domain.AccountUpdate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[update.AccountID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, update.AccountID)
	}
	if account.Version != update.ExpectedVersion {
		return fmt.Errorf("%w: %s at version %d, expected %d",
			domain.ErrVersionConflict, update.AccountID, account.Version, update.ExpectedVersion)
	}

	account.Balance = update.Balance
	account.Positions = domain.ClonePositions(update.Positions)
	account.Version++
	account.UpdatedAt = update.Trade.ExecutedAt
	r.accounts[update.AccountID] = account
	r.appendLocked(update.Trade)
	return nil
}

func (r *MemoryRepository) AppendTrade(ctx context.Context, trade domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[trade.AccountID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, trade.AccountID)
	}
	r.appendLocked(trade)
	return nil
}

func (r *MemoryRepository) appendLocked(trade domain.TradeRecord) {
	trades := append(r.trades[trade.AccountID], trade)
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	r.trades[trade.AccountID] = trades
}

func (r *MemoryRepository) ListTrades(ctx context.Context, accountID string, query domain.TradeQuery) ([]domain.TradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trades := r.trades[accountID]
	out := make([]domain.TradeRecord, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		if query.Before != "" && trades[i].ID >= query.Before {
			continue
		}
		out = append(out, trades[i])
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetTrade(ctx context.Context, accountID, tradeID string) (domain.TradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.trades[accountID] {
		if t.ID == tradeID {
			return t, nil
		}
	}
	return domain.TradeRecord{}, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, tradeID)
}

// ListAccountIDs returns every account id in lexical order
func (r *MemoryRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
