// Package accounts provides account persistence backends and account opening.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradeledger/internal/database"
	"github.com/aristath/tradeledger/internal/domain"
)

const tradesColumns = `id, account_id, symbol, side, quantity, price, total_amount, status, reason, executed_at, sequence`

// Repository is the SQLite AccountStore.
// Accounts, positions and trades live in the ledger database.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// Compile-time check that Repository implements domain.AccountStore
var _ domain.AccountStore = (*Repository)(nil)

// NewRepository creates a new SQLite account repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "accounts").Logger(),
	}
}

// CreateAccount inserts a new account with its initial positions
func (r *Repository) CreateAccount(ctx context.Context, account domain.Account) error {
	err := database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, balance, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, account.ID, account.Balance.String(), account.Version,
			formatTime(account.CreatedAt), formatTime(account.UpdatedAt))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
			}
			return err
		}
		return replacePositions(ctx, tx, account.ID, account.Positions)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return err
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().Str("account_id", account.ID).Str("balance", account.Balance.String()).Msg("Account created")
	return nil
}

// GetAccount reads a consistent snapshot of an account and its positions
func (r *Repository) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var account domain.Account
	err := database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		var balance, createdAt, updatedAt string
		err := tx.QueryRowContext(ctx, `
			SELECT id, balance, version, created_at, updated_at FROM accounts WHERE id = ?
		`, accountID).Scan(&account.ID, &balance, &account.Version, &createdAt, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
		}
		if err != nil {
			return err
		}
		if account.Balance, err = decimal.NewFromString(balance); err != nil {
			return fmt.Errorf("corrupt balance for %s: %w", accountID, err)
		}
		account.CreatedAt = parseTime(createdAt)
		account.UpdatedAt = parseTime(updatedAt)

		account.Positions, err = loadPositions(ctx, tx, accountID)
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

// CommitAccountUpdate applies balance, positions and trade record in one transaction.
// The account row is updated only if its version still equals ExpectedVersion.
func (r *Repository) CommitAccountUpdate(ctx context.Context, update domain.AccountUpdate) error {
	err := database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET balance = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, update.Balance.String(), formatTime(update.Trade.ExecutedAt), update.AccountID, update.ExpectedVersion)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, update.AccountID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, update.AccountID)
			}
			return fmt.Errorf("%w: %s at version %d", domain.ErrVersionConflict, update.AccountID, update.ExpectedVersion)
		}

		if err := replacePositions(ctx, tx, update.AccountID, update.Positions); err != nil {
			return err
		}
		return insertTrade(ctx, tx, update.Trade)
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: commit account update: %w", domain.ErrPersistence, err)
	}
	return nil
}

// AppendTrade records a trade without touching the account
func (r *Repository) AppendTrade(ctx context.Context, trade domain.TradeRecord) error {
	err := database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		return insertTrade(ctx, tx, trade)
	})
	if err != nil {
		return fmt.Errorf("%w: append trade: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListTrades returns an account's trades, most recent first
func (r *Repository) ListTrades(ctx context.Context, accountID string, query domain.TradeQuery) ([]domain.TradeRecord, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + tradesColumns + " FROM trades WHERE account_id = ?")
	args := []interface{}{accountID}
	if query.Before != "" {
		sb.WriteString(" AND id < ?")
		args = append(args, query.Before)
	}
	sb.WriteString(" ORDER BY id DESC")
	if query.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}

	rows, err := r.ledgerDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.TradeRecord, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// GetTrade returns one trade of an account
func (r *Repository) GetTrade(ctx context.Context, accountID, tradeID string) (domain.TradeRecord, error) {
	row := r.ledgerDB.QueryRowContext(ctx,
		"SELECT "+tradesColumns+" FROM trades WHERE account_id = ? AND id = ?", accountID, tradeID)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TradeRecord{}, fmt.Errorf("%w: %s", domain.ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListAccountIDs returns every account id, used by reconciliation
func (r *Repository) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadPositions(ctx context.Context, tx *sql.Tx, accountID string) ([]domain.Position, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT symbol, quantity, average_cost FROM positions
		WHERE account_id = ? ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var p domain.Position
		var qty, avg string
		if err := rows.Scan(&p.Symbol, &qty, &avg); err != nil {
			return nil, err
		}
		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("corrupt quantity for %s: %w", p.Symbol, err)
		}
		if p.AverageCost, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("corrupt average cost for %s: %w", p.Symbol, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func replacePositions(ctx context.Context, tx *sql.Tx, accountID string, positions []domain.Position) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = ?`, accountID); err != nil {
		return err
	}
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions (account_id, symbol, quantity, average_cost) VALUES (?, ?, ?, ?)
		`, accountID, p.Symbol, p.Quantity.String(), p.AverageCost.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func insertTrade(ctx context.Context, tx *sql.Tx, t domain.TradeRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (`+tradesColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AccountID, t.Symbol, string(t.Side),
		t.Quantity.String(), t.Price.String(), t.TotalAmount.String(),
		string(t.Status), t.Reason, formatTime(t.ExecutedAt), t.Sequence)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (domain.TradeRecord, error) {
	var t domain.TradeRecord
	var side, status, qty, price, total, executedAt string
	err := row.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &qty, &price, &total, &status, &t.Reason, &executedAt, &t.Sequence)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	if t.Quantity, err = decimal.NewFromString(qty); err != nil {
		return domain.TradeRecord{}, err
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return domain.TradeRecord{}, err
	}
	if t.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.TradeRecord{}, err
	}
	t.ExecutedAt = parseTime(executedAt)
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
