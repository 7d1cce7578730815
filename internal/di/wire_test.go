package di

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/domain"
)

func testConfig(t *testing.T, backend string) *config.Config {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.StoreBackend = backend
	return cfg
}

func TestWire_Backends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			container, jobs, err := Wire(ctx, testConfig(t, backend), zerolog.Nop())
			require.NoError(t, err)
			defer container.Close()

			assert.NotNil(t, container.Engine)
			assert.NotNil(t, jobs.Reconcile)
			assert.Nil(t, jobs.Backup)
			if backend == config.BackendMemory {
				assert.Nil(t, container.BackupService)
				assert.Nil(t, jobs.Maintenance)
			} else {
				assert.NotNil(t, container.BackupService)
				assert.NotNil(t, jobs.Maintenance)
			}

			account, err := container.AccountService.Open(ctx, decimal.NewFromInt(1000))
			require.NoError(t, err)

			rec, err := container.Engine.SubmitTrade(ctx, account.ID, domain.RawIntent{
				Symbol: "aapl", Side: "buy", Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100),
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, rec.Status)

			snap, err := container.PortfolioService.GetSnapshot(ctx, account.ID)
			require.NoError(t, err)
			assert.True(t, snap.Balance.Equal(decimal.NewFromInt(800)))

			drift, err := container.Auditor.ReconcileAccount(ctx, account.ID)
			require.NoError(t, err)
			assert.Empty(t, drift)
		})
	}
}

func TestWire_BackupJobRegistered(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	cfg.Backup.Enabled = true
	cfg.Backup.Schedule = "@every 1h"

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()
	require.NotNil(t, jobs.Backup)
	require.NoError(t, jobs.Backup.Run())

	backups, err := container.BackupService.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestWire_UnknownBackend(t *testing.T) {
	_, _, err := Wire(context.Background(), testConfig(t, "postgres"), zerolog.Nop())
	assert.Error(t, err)
}
