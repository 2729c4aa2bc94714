package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

func transactionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"transaction", "tx"},
		Short:   "List and inspect bank transactions",
	}
	cmd.AddCommand(
		transactionsListCmd(g),
		transactionsShowCmd(g),
		transactionsSetStatusCmd(g),
		transactionsBatchStatusCmd(g),
	)
	return cmd
}

func transactionsListCmd(g *globals) *cobra.Command {
	var (
		status, search, from, to, minAmount, maxAmount string
		hidePOS, hideCommissions, refresh              bool
		page, size                                     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bank transactions",
		Long: `List bank transactions. Without filters the cached collection is shown;
with filters the backend is queried directly.

Examples:
  recon transactions list --status unreconciled --hide-pos
  recon transactions list --search "BONIFICO" --from 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				filter := model.TransactionFilter{
					Search:          search,
					HidePOS:         hidePOS,
					HideCommissions: hideCommissions,
					Page:            page,
					Size:            size,
				}
				if status != "" {
					s, err := parseReconStatus(status)
					if err != nil {
						return err
					}
					filter.Status = s
				}
				var err error
				if filter.StartDate, err = optionalDate(from); err != nil {
					return err
				}
				if filter.EndDate, err = optionalDate(to); err != nil {
					return err
				}
				if filter.MinAmount, err = optionalAmount(minAmount); err != nil {
					return err
				}
				if filter.MaxAmount, err = optionalAmount(maxAmount); err != nil {
					return err
				}

				paged := cmd.Flags().Changed("page") || cmd.Flags().Changed("size")
				if paged || filter != (model.TransactionFilter{Page: page, Size: size}) {
					res, err := a.gw.ListTransactions(ctx, filter)
					if err != nil {
						return err
					}
					return printTransactions(a, res.Items, res.Total)
				}

				if refresh {
					if err := a.loader.Refresh(ctx, cache.Transactions); err != nil {
						return err
					}
				}
				coll, err := a.loader.Transactions(ctx)
				if err != nil {
					return err
				}
				return printTransactions(a, coll.Data, coll.Total)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "reconciliation status (unreconciled, partial, reconciled, ignored, or the backend value)")
	cmd.Flags().StringVar(&search, "search", "", "search the description")
	cmd.Flags().StringVar(&from, "from", "", "transaction date from (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "transaction date to (YYYY-MM-DD)")
	cmd.Flags().StringVar(&minAmount, "min", "", "minimum absolute amount")
	cmd.Flags().StringVar(&maxAmount, "max", "", "maximum absolute amount")
	cmd.Flags().BoolVar(&hidePOS, "hide-pos", false, "hide card payments")
	cmd.Flags().BoolVar(&hideCommissions, "hide-commissions", false, "hide bank commissions")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the cached collection")
	cmd.Flags().IntVar(&page, "page", 1, "page for filtered queries")
	cmd.Flags().IntVar(&size, "size", 50, "page size for filtered queries")
	return cmd
}

func printTransactions(a *app, transactions []model.BankTransaction, total int) error {
	return a.out.Render(transactions, func(w io.Writer) error {
		table := cli.NewTable("ID", "DATE", "DESCRIPTION", "AMOUNT", "REMAINING", "STATUS")
		for _, txn := range transactions {
			table.Row(
				strconv.FormatInt(txn.ID, 10),
				formatDate(&txn.TransactionDate),
				truncate(txn.Description, 40),
				a.out.Money.Signed(txn.Amount),
				a.out.Money.Format(txn.RemainingAmount),
				cli.ReconStatus(txn.ReconciliationStatus),
			)
		}
		_, err := fmt.Fprintf(w, "%s\n%s\n", table.Render(), cli.SubtleStyle.Render(fmt.Sprintf("%d of %d transactions", len(transactions), total)))
		return err
	})
}

type transactionDetail struct {
	Links       []model.ReconciliationLink `json:"links" yaml:"links"`
	Transaction model.BankTransaction      `json:"transaction" yaml:"transaction"`
}

func transactionsShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a transaction and its reconciliation links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				txn, err := a.loader.Transaction(ctx, id)
				if err != nil {
					return err
				}
				links, err := a.gw.TransactionLinks(ctx, id)
				if err != nil {
					return err
				}
				return a.out.Render(transactionDetail{Transaction: txn, Links: links}, func(w io.Writer) error {
					body := fmt.Sprintf("Date:        %s\nValue date:  %s\nDescription: %s\nAmount:      %s\nReconciled:  %s\nRemaining:   %s\nStatus:      %s",
						formatDate(&txn.TransactionDate), formatDate(txn.ValueDate), txn.Description,
						a.out.Money.Signed(txn.Amount), a.out.Money.Format(txn.ReconciledAmount),
						a.out.Money.Format(txn.RemainingAmount), txn.ReconciliationStatus)
					if _, err := fmt.Fprintln(w, cli.RenderBox(fmt.Sprintf("Transaction %d", txn.ID), body)); err != nil {
						return err
					}
					return printLinks(w, a, links)
				})
			})
		},
	}
}

func transactionsSetStatusCmd(g *globals) *cobra.Command {
	var reconciled string
	cmd := &cobra.Command{
		Use:   "set-status ID STATUS",
		Short: "Set a transaction's reconciliation status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status, err := parseReconStatus(args[1])
			if err != nil {
				return err
			}
			amount, err := optionalAmount(reconciled)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				return a.reconciler.UpdateTransactionStatus(ctx, id, status, amount)
			})
		},
	}
	cmd.Flags().StringVar(&reconciled, "reconciled", "", "reconciled amount (derived by the backend when omitted)")
	return cmd
}

func transactionsBatchStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "batch-status STATUS ID...",
		Short: "Set the reconciliation status of many transactions",
		Long: `Set the reconciliation status of many transactions at once. Ids may be
given as separate arguments or comma separated lists.

Example:
  recon transactions batch-status ignored 12,13,14 20`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseReconStatus(args[0])
			if err != nil {
				return err
			}
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				done, err := a.reconciler.BatchUpdateTransactionStatus(ctx, ids, status)
				if renderErr := a.out.Render(map[string]any{"updated": done, "requested": len(ids)}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%d of %d transactions updated\n", len(done), len(ids))
					return err
				}); renderErr != nil && err == nil {
					err = renderErr
				}
				return err
			})
		},
	}
}
