package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/events"
	"github.com/aristath/tradeledger/internal/modules/accounts"
	"github.com/aristath/tradeledger/internal/modules/ledger"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
	"github.com/aristath/tradeledger/internal/modules/settlement"
	"github.com/aristath/tradeledger/internal/modules/trading"
	"github.com/aristath/tradeledger/internal/reliability"
)

// InitializeServices creates all services on top of an initialized store
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Recorder = trading.NewRecorder(nil, nil)
	container.Engine = settlement.NewEngine(
		container.Store,
		container.Recorder,
		container.EventManager,
		settlement.Config{
			MaxAttempts:      cfg.Settlement.MaxAttempts,
			BaseBackoff:      cfg.Settlement.BaseBackoff,
			MaxBackoff:       cfg.Settlement.MaxBackoff,
			LockTimeout:      cfg.Settlement.LockTimeout,
			CommitTimeout:    cfg.Settlement.CommitTimeout,
			RecordRejections: cfg.Settlement.RecordRejections,
		},
		log,
	)

	container.AccountService = accounts.NewService(container.Store, container.EventManager, log)
	container.PortfolioService = portfolio.NewPortfolioService(container.Store, log)
	container.Auditor = ledger.NewAuditor(container.Store, log)

	backupService, err := newBackupService(ctx, container, cfg, log)
	if err != nil {
		return err
	}
	container.BackupService = backupService

	log.Info().Msg("Services initialized")
	return nil
}

// newBackupService builds the backup service for persistent backends. Without
// a bucket archives are kept under <DataDir>/backups.
func newBackupService(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) (*reliability.BackupService, error) {
	var snapshotters []reliability.Snapshotter
	switch {
	case container.LedgerDB != nil:
		snapshotters = append(snapshotters, reliability.NewSQLiteSnapshotter(container.LedgerDB))
	case container.Badger != nil:
		snapshotters = append(snapshotters, reliability.NewStreamSnapshotter("accounts", container.Badger))
	default:
		return nil, nil
	}

	var uploader reliability.Uploader = &reliability.LocalUploader{Dir: filepath.Join(cfg.DataDir, "backups")}
	if cfg.Backup.Bucket != "" {
		s3Uploader, err := reliability.NewS3Uploader(ctx, reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup uploader: %w", err)
		}
		uploader = s3Uploader
	}

	return reliability.NewBackupService(
		snapshotters,
		uploader,
		reliability.BackupConfig{
			StagingDir: filepath.Join(cfg.DataDir, "backup-staging"),
			Prefix:     cfg.Backup.Prefix,
			Retention:  cfg.Backup.RetentionCount,
		},
		container.EventManager,
		log,
	), nil
}
