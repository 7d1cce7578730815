package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aristath/tradeledger/internal/domain"
	"github.com/aristath/tradeledger/internal/modules/accounts"
	"github.com/aristath/tradeledger/internal/modules/portfolio"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage accounts"}

	var balance string
	open := &cobra.Command{
		Use:   "open",
		Short: "Open an account (uses --account as id when given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial := accounts.DefaultInitialBalance
			if balance != "" {
				d, err := decimal.NewFromString(balance)
				if err != nil {
					return fmt.Errorf("invalid --balance: %w", err)
				}
				initial = d
			}

			var (
				account domain.Account
				err     error
			)
			if a.accountID != "" {
				account, err = a.container.AccountService.OpenWithID(cmd.Context(), a.accountID, initial)
			} else {
				account, err = a.container.AccountService.Open(cmd.Context(), initial)
			}
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(account)
			}
			fmt.Fprintf(a.out, "Opened account %s with %s\n", account.ID, formatMoney(account.Balance, a.currency))
			return nil
		},
	}
	open.Flags().StringVar(&balance, "balance", "", "starting cash balance (default 10000)")

	cmd.AddCommand(open)
	return cmd
}

func newTradeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "trade", Short: "Submit trades"}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		cmd.AddCommand(&cobra.Command{
			Use:   strings.ToLower(string(side)) + " SYMBOL QUANTITY PRICE",
			Short: "Settle a " + strings.ToLower(string(side)) + " trade",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireAccount(); err != nil {
					return err
				}
				qty, err := decimal.NewFromString(args[1])
				if err != nil {
					return domain.NewValidationError("quantity", "must be a number")
				}
				price, err := decimal.NewFromString(args[2])
				if err != nil {
					return domain.NewValidationError("price", "must be a number")
				}

				rec, err := a.container.Engine.SubmitTrade(cmd.Context(), a.accountID, domain.RawIntent{
					Symbol:   args[0],
					Side:     string(side),
					Quantity: qty,
					Price:    price,
				})
				if err != nil {
					if rec.ID != "" {
						return fmt.Errorf("trade %s %s: %w", rec.ID, rec.Status, err)
					}
					return err
				}
				if a.jsonOut {
					return a.printJSON(rec)
				}
				fmt.Fprintf(a.out, "%s %s %s %s @ %s = %s (%s)\n",
					rec.ID, rec.Side, rec.Quantity, rec.Symbol,
					formatMoney(rec.Price, a.currency), formatMoney(rec.TotalAmount, a.currency), rec.Status)
				return nil
			},
		})
	}
	return cmd
}

func newTradesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "trades", Short: "Inspect trade history"}

	var (
		limit  int
		before string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List trades, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			trades, err := a.container.PortfolioService.ListTrades(cmd.Context(), a.accountID, domain.TradeQuery{
				Limit:  limit,
				Before: before,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(trades)
			}

			tw := newTable(a.out)
			fmt.Fprintln(tw, "ID\tTIME\tSIDE\tSYMBOL\tQTY\tPRICE\tTOTAL\tSTATUS\tREASON")
			for _, t := range trades {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.ExecutedAt.Format(time.RFC3339), t.Side, t.Symbol, t.Quantity,
					formatMoney(t.Price, a.currency), formatMoney(t.TotalAmount, a.currency), t.Status, t.Reason)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of trades")
	list.Flags().StringVar(&before, "before", "", "only trades older than this trade id")

	cmd.AddCommand(list)
	return cmd
}

func newPortfolioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "portfolio", Short: "Inspect holdings"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show cash balance and positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			snap, err := a.container.PortfolioService.GetSnapshot(cmd.Context(), a.accountID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(snap)
			}

			fmt.Fprintf(a.out, "Account %s  cash %s  version %d\n", snap.AccountID, formatMoney(snap.Balance, a.currency), snap.Version)
			tw := newTable(a.out)
			fmt.Fprintln(tw, "SYMBOL\tQTY\tAVG COST")
			for _, p := range snap.Positions {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Symbol, p.Quantity, p.AverageCost.StringFixed(6))
			}
			return tw.Flush()
		},
	})

	var quotes []string
	value := &cobra.Command{
		Use:   "value",
		Short: "Value the portfolio (unquoted symbols at average cost)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAccount(); err != nil {
				return err
			}
			prices, err := domain.ParsePriceMap(quotes)
			if err != nil {
				return err
			}
			v, err := a.container.PortfolioService.GetPortfolioValue(cmd.Context(), a.accountID, prices)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(v)
			}
			return printValue(a, v)
		},
	}
	value.Flags().StringSliceVarP(&quotes, "quote", "q", nil, "price as SYMBOL:PRICE (repeatable)")
	cmd.AddCommand(value)
	return cmd
}

func printValue(a *app, v portfolio.PortfolioValue) error {
	tw := newTable(a.out)
	fmt.Fprintln(tw, "SYMBOL\tQTY\tPRICE\tVALUE\tP&L\tWEIGHT\t")
	for _, h := range v.Holdings {
		price := formatMoney(h.Price, a.currency)
		if !h.Priced {
			price += " (cost)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			h.Symbol, h.Quantity, price, formatMoney(h.Value, a.currency),
			formatMoney(h.UnrealizedPnL, a.currency), formatPercent(h.Weight))
	}
	fmt.Fprintf(tw, "CASH\t\t\t%s\t\t%s\t\n", formatMoney(v.Balance, a.currency), formatPercent(v.CashWeight))
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Total %s  positions %s  concentration %.4f\n",
		formatMoney(v.TotalValue, a.currency), formatMoney(v.PositionsValue, a.currency), v.Concentration)
	return nil
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Replay trade history and report drifted holdings (all accounts without --account)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := make(map[string]interface{})
			if a.accountID != "" {
				d, err := a.container.Auditor.ReconcileAccount(cmd.Context(), a.accountID)
				if err != nil {
					return err
				}
				if len(d) > 0 {
					report[a.accountID] = d
				}
			} else {
				all, err := a.container.Auditor.ReconcileAll(cmd.Context(), a.container.Store)
				if err != nil {
					return err
				}
				for id, d := range all {
					report[id] = d
				}
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			if len(report) == 0 {
				fmt.Fprintln(a.out, "Ledger consistent")
				return nil
			}
			for id := range report {
				fmt.Fprintf(a.out, "Account %s out of balance\n", id)
			}
			return fmt.Errorf("%d account(s) out of balance", len(report))
		},
	}
}

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "backup", Short: "Store backups"}

	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Snapshot the store and upload an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := a.container.BackupService
			if svc == nil {
				return fmt.Errorf("backups need a persistent store backend")
			}
			result, err := svc.CreateAndUpload(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := svc.RotateOldBackups(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: rotation failed:", err)
			}
			if a.jsonOut {
				return a.printJSON(result)
			}
			fmt.Fprintf(a.out, "Uploaded %s (%d bytes, %s)\n", result.Key, result.SizeBytes, result.Checksum)
			return nil
		},
	})
	return cmd
}
