package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/database"
	"github.com/aristath/tradeledger/internal/modules/accounts"
)

// InitializeStore opens the configured store backend and applies schemas
func InitializeStore(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{StoreBackend: cfg.StoreBackend}

	switch cfg.StoreBackend {
	case config.BackendSQLite:
		// ledger.db - accounts, holdings and the immutable trade history
		ledgerDB, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, "ledger.db"),
			Profile: database.ProfileLedger,
			Name:    "ledger",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
		}
		if err := ledgerDB.Migrate(); err != nil {
			ledgerDB.Close()
			return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
		}
		container.LedgerDB = ledgerDB
		container.Store = accounts.NewRepository(ledgerDB.Conn(), log)

	case config.BackendBadger:
		repo, err := accounts.OpenBadger(filepath.Join(cfg.DataDir, "accounts.badger"), log)
		if err != nil {
			return nil, err
		}
		container.Badger = repo
		container.Store = repo

	case config.BackendMemory:
		container.Store = accounts.NewMemoryRepository()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	log.Info().Str("backend", cfg.StoreBackend).Str("data_dir", cfg.DataDir).Msg("Store initialized")
	return container, nil
}
