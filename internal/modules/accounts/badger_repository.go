package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tradeledger/internal/domain"
)

// Key layout:
//
//	a/<accountID>                -> accountDoc
//	t/<len>:<accountID>/<ulid>   -> tradeDoc
//
// The length prefix keeps one account's trade range from containing
// another's when ids share a prefix ("alice" vs "alice/x").
const (
	accountPrefix = "a/"
	tradePrefix   = "t/"
)

type positionDoc struct {
	Symbol      string `msgpack:"s"`
	Quantity    string `msgpack:"q"`
	AverageCost string `msgpack:"c"`
}

type accountDoc struct {
	ID        string        `msgpack:"id"`
	Balance   string        `msgpack:"b"`
	Positions []positionDoc `msgpack:"p"`
	Version   int64         `msgpack:"v"`
	CreatedAt time.Time     `msgpack:"ca"`
	UpdatedAt time.Time     `msgpack:"ua"`
}

type tradeDoc struct {
	ID          string    `msgpack:"id"`
	AccountID   string    `msgpack:"a"`
	Symbol      string    `msgpack:"s"`
	Side        string    `msgpack:"sd"`
	Quantity    string    `msgpack:"q"`
	Price       string    `msgpack:"p"`
	TotalAmount string    `msgpack:"t"`
	Status      string    `msgpack:"st"`
	Reason      string    `msgpack:"r,omitempty"`
	ExecutedAt  time.Time `msgpack:"x"`
	Sequence    int64     `msgpack:"sq,omitempty"`
}

// BadgerRepository is an AccountStore on an embedded Badger KV database.
// Commits run in a single read-write transaction; Badger's conflict
// detection surfaces concurrent writers as ErrVersionConflict.
type BadgerRepository struct {
	db  *badger.DB
	log zerolog.Logger
}

var _ domain.AccountStore = (*BadgerRepository)(nil)

// OpenBadger opens (or creates) a Badger database in dir.
// An empty dir opens an in-memory database.
func OpenBadger(dir string, log zerolog.Logger) (*BadgerRepository, error) {
	log = log.With().Str("repo", "accounts_badger").Logger()

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log})
	if strings.TrimSpace(dir) == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{log: log})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerRepository{db: db, log: log}, nil
}

// Close closes the underlying database
func (r *BadgerRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *BadgerRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	key := accountKey(account.ID)
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putAccount(txn, account)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return err
		}
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	r.log.Info().Str("account_id", account.ID).Str("balance", account.Balance.String()).Msg("Account created")
	return nil
}

func (r *BadgerRepository) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var account domain.Account
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		account, err = getAccount(txn, accountID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Account{}, err
		}
		return domain.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *BadgerRepository) CommitAccountUpdate(ctx context.Context, update domain.AccountUpdate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		account, err := getAccount(txn, update.AccountID)
		if err != nil {
			return err
		}
		if account.Version != update.ExpectedVersion {
			return fmt.Errorf("%w: %s at version %d, expected %d",
				domain.ErrVersionConflict, update.AccountID, account.Version, update.ExpectedVersion)
		}

		account.Balance = update.Balance
		account.Positions = domain.ClonePositions(update.Positions)
		account.Version++
		account.UpdatedAt = update.Trade.ExecutedAt
		if err := putAccount(txn, account); err != nil {
			return err
		}
		return putTrade(txn, update.Trade)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrAccountNotFound):
		return err
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %s: %w", domain.ErrVersionConflict, update.AccountID, err)
	default:
		return fmt.Errorf("%w: commit account update: %w", domain.ErrPersistence, err)
	}
}

func (r *BadgerRepository) AppendTrade(ctx context.Context, trade domain.TradeRecord) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(accountKey(trade.AccountID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, trade.AccountID)
			}
			return err
		}
		return putTrade(txn, trade)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: append trade: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (r *BadgerRepository) ListTrades(ctx context.Context, accountID string, query domain.TradeQuery) ([]domain.TradeRecord, error) {
	prefix := tradeRange(accountID)
	trades := make([]domain.TradeRecord, 0)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= seek.
		seek := append(append([]byte{}, prefix...), 0xFF)
		if query.Before != "" {
			seek = tradeKey(accountID, query.Before)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if query.Before != "" && string(item.Key()) == string(seek) {
				continue
			}
			var doc tradeDoc
			if err := item.Value(func(val []byte) error { return msgpack.Unmarshal(val, &doc) }); err != nil {
				return err
			}
			trade, err := doc.record()
			if err != nil {
				return err
			}
			trades = append(trades, trade)
			if query.Limit > 0 && len(trades) == query.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func (r *BadgerRepository) GetTrade(ctx context.Context, accountID, tradeID string) (domain.TradeRecord, error) {
	var trade domain.TradeRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tradeKey(accountID, tradeID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrTradeNotFound, tradeID)
			}
			return err
		}
		var doc tradeDoc
		if err := item.Value(func(val []byte) error { return msgpack.Unmarshal(val, &doc) }); err != nil {
			return err
		}
		trade, err = doc.record()
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrTradeNotFound) {
			return domain.TradeRecord{}, err
		}
		return domain.TradeRecord{}, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListAccountIDs returns every account id in key order
func (r *BadgerRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(accountPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), accountPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}

// Backup streams a full backup of the database to w
func (r *BadgerRepository) Backup(w io.Writer) error {
	if _, err := r.db.Backup(w, 0); err != nil {
		return fmt.Errorf("badger backup failed: %w", err)
	}
	return nil
}

func accountKey(accountID string) []byte {
	return []byte(accountPrefix + accountID)
}

func tradeRange(accountID string) []byte {
	return []byte(tradePrefix + strconv.Itoa(len(accountID)) + ":" + accountID + "/")
}

func tradeKey(accountID, tradeID string) []byte {
	return append(tradeRange(accountID), tradeID...)
}

func getAccount(txn *badger.Txn, accountID string) (domain.Account, error) {
	item, err := txn.Get(accountKey(accountID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
		}
		return domain.Account{}, err
	}
	var doc accountDoc
	if err := item.Value(func(val []byte) error { return msgpack.Unmarshal(val, &doc) }); err != nil {
		return domain.Account{}, fmt.Errorf("corrupt account %s: %w", accountID, err)
	}
	return doc.account()
}

func putAccount(txn *badger.Txn, account domain.Account) error {
	doc := accountDoc{
		ID:        account.ID,
		Balance:   account.Balance.String(),
		Positions: make([]positionDoc, 0, len(account.Positions)),
		Version:   account.Version,
		CreatedAt: account.CreatedAt.UTC(),
		UpdatedAt: account.UpdatedAt.UTC(),
	}
	for _, p := range domain.ClonePositions(account.Positions) {
		doc.Positions = append(doc.Positions, positionDoc{
			Symbol:      p.Symbol,
			Quantity:    p.Quantity.String(),
			AverageCost: p.AverageCost.String(),
		})
	}
	val, err := msgpack.Marshal(&doc)
	if err != nil {
		return err
	}
	return txn.Set(accountKey(account.ID), val)
}

func putTrade(txn *badger.Txn, t domain.TradeRecord) error {
	val, err := msgpack.Marshal(&tradeDoc{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity.String(),
		Price:       t.Price.String(),
		TotalAmount: t.TotalAmount.String(),
		Status:      string(t.Status),
		Reason:      t.Reason,
		ExecutedAt:  t.ExecutedAt.UTC(),
		Sequence:    t.Sequence,
	})
	if err != nil {
		return err
	}
	return txn.Set(tradeKey(t.AccountID, t.ID), val)
}

func (d accountDoc) account() (domain.Account, error) {
	balance, err := decimal.NewFromString(d.Balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("corrupt balance for %s: %w", d.ID, err)
	}
	account := domain.Account{
		ID:        d.ID,
		Balance:   balance,
		Positions: make([]domain.Position, 0, len(d.Positions)),
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, p := range d.Positions {
		qty, err := decimal.NewFromString(p.Quantity)
		if err != nil {
			return domain.Account{}, fmt.Errorf("corrupt quantity for %s: %w", p.Symbol, err)
		}
		avg, err := decimal.NewFromString(p.AverageCost)
		if err != nil {
			return domain.Account{}, fmt.Errorf("corrupt average cost for %s: %w", p.Symbol, err)
		}
		account.Positions = append(account.Positions, domain.Position{Symbol: p.Symbol, Quantity: qty, AverageCost: avg})
	}
	return account, nil
}

func (d tradeDoc) record() (domain.TradeRecord, error) {
	t := domain.TradeRecord{
		ID:         d.ID,
		AccountID:  d.AccountID,
		Symbol:     d.Symbol,
		Side:       domain.Side(d.Side),
		Status:     domain.TradeStatus(d.Status),
		Reason:     d.Reason,
		ExecutedAt: d.ExecutedAt.UTC(),
		Sequence:   d.Sequence,
	}
	var err error
	if t.Quantity, err = decimal.NewFromString(d.Quantity); err != nil {
		return domain.TradeRecord{}, err
	}
	if t.Price, err = decimal.NewFromString(d.Price); err != nil {
		return domain.TradeRecord{}, err
	}
	if t.TotalAmount, err = decimal.NewFromString(d.TotalAmount); err != nil {
		return domain.TradeRecord{}, err
	}
	return t, nil
}

// badgerLogger routes Badger's internal logging through zerolog
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
