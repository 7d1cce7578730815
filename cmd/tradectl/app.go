package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/tradeledger/internal/config"
	"github.com/aristath/tradeledger/internal/di"
	"github.com/aristath/tradeledger/pkg/logger"
)

// app carries the state shared by all subcommands.
type app struct {
	out       io.Writer
	container *di.Container
	owned     bool // container was opened by this invocation

	dataDir   string
	backend   string
	accountID string
	currency  string
	jsonOut   bool
	verbose   bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tradectl",
		Short:         "Operate the trade ledger store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(a.out)
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dataDir, "data-dir", "", "data directory (default from config)")
	flags.StringVar(&a.backend, "backend", "", "store backend: sqlite, badger or memory (default from config)")
	flags.StringVarP(&a.accountID, "account", "a", "", "account id")
	flags.StringVar(&a.currency, "currency", "USD", "currency used to display amounts")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAccountCmd(a),
		newTradeCmd(a),
		newTradesCmd(a),
		newPortfolioCmd(a),
		newReconcileCmd(a),
		newBackupCmd(a),
	)
	return root
}

// open wires the configured store unless a container was injected.
func (a *app) open(ctx context.Context) error {
	if a.container != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.backend != "" {
		cfg.StoreBackend = a.backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	log := zerolog.Nop()
	if a.verbose {
		log = logger.New(logger.Config{Level: "debug", Pretty: true})
	}

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.container = container
	a.owned = true
	return nil
}

func (a *app) close() error {
	if !a.owned || a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	a.owned = false
	return err
}

func (a *app) requireAccount() error {
	if a.accountID == "" {
		return fmt.Errorf("--account is required")
	}
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
