// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/tradeledger/internal/database"
	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/events"
	"github.com/aristath/tradeledger/internal/modules/accounts"
	"github.com/aristath/tradeledger/internal/modules/ledger"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
	"github.com/aristath/tradeledger/internal/modules/settlement"
	"github.com/aristath/tradeledger/internal/modules/trading"
	"github.com/aristath/tradeledger/internal/reliability"
)

// Store is what the container needs from a store backend
type Store interface {
	domain.AccountStore
	domain.AccountLister
}

// Container holds all application dependencies and is the single source of
// truth for service instances
type Container struct {
	// Store backend; exactly one of LedgerDB and Badger is set for the
	// persistent backends, neither for memory
	StoreBackend string
	Store        Store
	LedgerDB     *database.DB
	Badger       *accounts.BadgerRepository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	Recorder         *trading.Recorder
	Engine           *settlement.Engine
	AccountService   *accounts.Service
	PortfolioService *portfolio.PortfolioService
	Auditor          *ledger.Auditor
	BackupService    *reliability.BackupService // nil when no snapshotters exist
}

// Close releases the store backend
func (c *Container) Close() error {
	if c.LedgerDB != nil {
		return c.LedgerDB.Close()
	}
	if c.Badger != nil {
		return c.Badger.Close()
	}
	return nil
}
