package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/reliability"
	"github.com/aristath/tradeledger/internal/scheduler"
)

const (
	maintenanceSchedule = "0 30 * * * *" // hourly at :30
	reconcileSchedule   = "0 15 4 * * *" // daily 04:15
	backupTimeout       = 30 * time.Minute
	reconcileTimeout    = 10 * time.Minute
)

// JobInstances holds the registered background jobs
type JobInstances struct {
	Scheduler   *scheduler.Scheduler
	Maintenance scheduler.Job
	Reconcile   scheduler.Job
	Backup      scheduler.Job // nil unless backups are enabled
}

// RegisterJobs creates the background jobs and registers them with a new scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)
	jobs := &JobInstances{Scheduler: sched}

	jobs.Reconcile = scheduler.NewReconcileLedgerJob(
		container.Auditor,
		container.Store,
		container.EventManager,
		reconcileTimeout,
		log,
	)
	if err := sched.AddJob(reconcileSchedule, jobs.Reconcile); err != nil {
		return nil, fmt.Errorf("failed to register reconcile job: %w", err)
	}

	if cfg.StoreBackend != config.BackendMemory {
		jobs.Maintenance = reliability.NewMaintenanceJob(container.LedgerDB, cfg.DataDir, log)
		if err := sched.AddJob(maintenanceSchedule, jobs.Maintenance); err != nil {
			return nil, fmt.Errorf("failed to register maintenance job: %w", err)
		}
	}

	if cfg.Backup.Enabled && container.BackupService != nil {
		jobs.Backup = reliability.NewBackupJob(container.BackupService, backupTimeout, log)
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job (schedule %q): %w", cfg.Backup.Schedule, err)
		}
	}

	return jobs, nil
}
