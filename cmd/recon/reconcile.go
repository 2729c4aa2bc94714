package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
	"github.com/Veraticus/fattura-reconcile/internal/session"
)

func reconcileCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		Aliases: []string{"rec"},
		Short:   "Match invoices against bank transactions",
		Long: `Build a selection of invoices and transactions, ask the backend for
match suggestions, and commit reconciliations. The selection and the recent
reconciliation history are kept between runs.

Typical flow:
  recon reconcile select --invoice 12 --transaction 340
  recon reconcile status
  recon reconcile commit

  recon reconcile suggest 340
  recon reconcile accept 1
  recon reconcile undo --last`,
	}
	cmd.AddCommand(
		reconcileSelectCmd(g),
		reconcileUnselectCmd(g),
		reconcileStatusCmd(g),
		reconcileSuggestCmd(g),
		reconcileOpportunitiesCmd(g),
		reconcileCommitCmd(g),
		reconcileMatchCmd(g),
		reconcileAcceptCmd(g),
		reconcileRejectCmd(g),
		reconcileAutoCmd(g),
		reconcileUndoCmd(g),
		reconcileRecentCmd(g),
		reconcileClearCmd(g),
		reconcileConfigCmd(g),
	)
	return cmd
}

func reconcileSelectCmd(g *globals) *cobra.Command {
	var invoiceArgs, transactionArgs []string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Add invoices and transactions to the selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			invoiceIDs, err := parseIDs(invoiceArgs)
			if err != nil {
				return err
			}
			transactionIDs, err := parseIDs(transactionArgs)
			if err != nil {
				return err
			}
			if len(invoiceIDs)+len(transactionIDs) == 0 {
				return fmt.Errorf("%w: pass --invoice or --transaction", common.ErrEmptySelection)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				for _, id := range invoiceIDs {
					inv, err := a.loader.Invoice(ctx, id)
					if err != nil {
						return err
					}
					if err := a.session.AddSelectedInvoice(inv); err != nil {
						return err
					}
				}
				for _, id := range transactionIDs {
					txn, err := a.loader.Transaction(ctx, id)
					if err != nil {
						return err
					}
					if err := a.session.AddSelectedTransaction(txn); err != nil {
						return err
					}
				}
				return printStatus(a)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&invoiceArgs, "invoice", "i", nil, "invoice ids")
	cmd.Flags().StringSliceVarP(&transactionArgs, "transaction", "t", nil, "transaction ids")
	return cmd
}

func reconcileUnselectCmd(g *globals) *cobra.Command {
	var invoiceArgs, transactionArgs []string
	cmd := &cobra.Command{
		Use:   "unselect",
		Short: "Remove invoices and transactions from the selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			invoiceIDs, err := parseIDs(invoiceArgs)
			if err != nil {
				return err
			}
			transactionIDs, err := parseIDs(transactionArgs)
			if err != nil {
				return err
			}
			return g.run(cmd, func(_ context.Context, a *app) error {
				for _, id := range invoiceIDs {
					a.session.RemoveSelectedInvoice(id)
				}
				for _, id := range transactionIDs {
					a.session.RemoveSelectedTransaction(id)
				}
				return printStatus(a)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&invoiceArgs, "invoice", "i", nil, "invoice ids")
	cmd.Flags().StringSliceVarP(&transactionArgs, "transaction", "t", nil, "transaction ids")
	return cmd
}

type reconcileStatus struct {
	State        string                  `json:"state" yaml:"state"`
	Invoices     []model.Invoice         `json:"invoices" yaml:"invoices"`
	Transactions []model.BankTransaction `json:"transactions" yaml:"transactions"`
	Suggestions  []model.MatchSuggestion `json:"suggestions" yaml:"suggestions"`
	Totals       session.Totals          `json:"totals" yaml:"totals"`
	Config       session.Config          `json:"config" yaml:"config"`
}

func reconcileStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the selection, its balance and pending suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(_ context.Context, a *app) error {
				return printStatus(a)
			})
		},
	}
}

func printStatus(a *app) error {
	status := reconcileStatus{
		State:        a.session.State().String(),
		Invoices:     a.session.SelectedInvoices(),
		Transactions: a.session.SelectedTransactions(),
		Suggestions:  pendingSuggestions(a),
		Totals:       a.session.Totals(),
		Config:       a.session.Config(),
	}
	return a.out.Render(status, func(w io.Writer) error {
		money := a.out.Money
		var b strings.Builder
		fmt.Fprintf(&b, "State: %s\n\n", cli.BoldStyle.Render(status.State))

		fmt.Fprintf(&b, "Invoices (%d)\n", len(status.Invoices))
		for _, inv := range status.Invoices {
			fmt.Fprintf(&b, "  %d  %-14s %-28s open %s\n", inv.ID, inv.DocNumber, truncate(inv.CounterpartyName, 28), money.Format(inv.OpenAmount))
		}
		fmt.Fprintf(&b, "Transactions (%d)\n", len(status.Transactions))
		for _, txn := range status.Transactions {
			fmt.Fprintf(&b, "  %d  %s  %-36s remaining %s\n", txn.ID, formatDate(&txn.TransactionDate), truncate(txn.Description, 36), money.Format(txn.RemainingAmount))
		}

		balance := fmt.Sprintf("Open %s, available %s, difference %s",
			money.Format(status.Totals.InvoicesOpen),
			money.Format(status.Totals.TransactionsRemaining),
			money.Format(status.Totals.Difference))
		if status.Totals.Balanced() && status.Totals.Invoices > 0 {
			balance = cli.FormatSuccess(balance)
		} else {
			balance = cli.SubtleStyle.Render(balance)
		}
		fmt.Fprintf(&b, "\n%s\n", balance)

		if _, err := fmt.Fprintln(w, cli.RenderBox("Reconciliation", strings.TrimRight(b.String(), "\n"))); err != nil {
			return err
		}
		if len(status.Suggestions) > 0 {
			return printSuggestionTable(w, a, status.Suggestions)
		}
		return nil
	})
}

// pendingSuggestions lists both suggestion kinds, best first. Commands refer
// to them by their 1-based position in this list.
func pendingSuggestions(a *app) []model.MatchSuggestion {
	return a.session.SuggestionsAbove(0)
}

// resolveSuggestion turns a list position or a suggestion key into a key.
func resolveSuggestion(list []model.MatchSuggestion, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("%w: no suggestion #%d (%d pending)", common.ErrNotFound, n, len(list))
		}
		return list[n-1].Key(), nil
	}
	for _, s := range list {
		if s.Key() == ref {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: no suggestion %q", common.ErrNotFound, ref)
}

func printSuggestionTable(w io.Writer, a *app, list []model.MatchSuggestion) error {
	table := cli.NewTable("#", "CONFIDENCE", "TYPE", "INVOICES", "TRANSACTIONS", "AMOUNT", "DESCRIPTION")
	for i, s := range list {
		table.Row(
			strconv.Itoa(i+1),
			a.out.Money.Percent(s.ConfidenceScore),
			string(s.MatchType),
			joinIDs(s.InvoiceIDs),
			joinIDs(s.TransactionIDs),
			a.out.Money.Format(s.TotalAmount),
			truncate(s.Description, 40),
		)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}

func printSuggestions(a *app, list []model.MatchSuggestion) error {
	return a.out.Render(list, func(w io.Writer) error {
		if len(list) == 0 {
			_, err := fmt.Fprintln(w, cli.SubtleStyle.Render("No suggestions"))
			return err
		}
		return printSuggestionTable(w, a, list)
	})
}

func reconcileSuggestCmd(g *globals) *cobra.Command {
	var hint int64
	cmd := &cobra.Command{
		Use:   "suggest TRANSACTION_ID",
		Short: "Ask the backend for invoices matching a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				list, err := a.reconciler.FetchSuggestions(ctx, id, hint)
				if err != nil {
					return err
				}
				return printSuggestions(a, list)
			})
		},
	}
	cmd.Flags().Int64Var(&hint, "anagraphics", 0, "restrict to one counterparty")
	return cmd
}

func reconcileOpportunitiesCmd(g *globals) *cobra.Command {
	var (
		level string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "List matching opportunities across all open items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch service.ConfidenceLevel(level) {
			case service.ConfidenceAny, service.ConfidenceLow, service.ConfidenceMedium, service.ConfidenceHigh, service.ConfidenceExact:
			default:
				return fmt.Errorf("%w: confidence level %q", common.ErrInvalidConfig, level)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				list, err := a.reconciler.FetchOpportunities(ctx, service.ConfidenceLevel(level), limit)
				if err != nil {
					return err
				}
				return printSuggestions(a, list)
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", string(service.ConfidenceHigh), "confidence level (any, low, medium, high, exact)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum opportunities")
	return cmd
}

func printEntry(a *app, entry *model.RecentReconciliation) error {
	if entry == nil {
		return nil
	}
	return a.out.Render(entry, func(w io.Writer) error {
		table := cli.NewTable("INVOICE", "TRANSACTION", "AMOUNT")
		for _, p := range entry.Pairs {
			table.Row(strconv.FormatInt(p.InvoiceID, 10), strconv.FormatInt(p.TransactionID, 10), a.out.Money.Format(p.Amount))
		}
		_, err := fmt.Fprintf(w, "%s\n%s\n", table.Render(), cli.SubtleStyle.Render("Total "+a.out.Money.Format(entry.Total)))
		return err
	})
}

func reconcileCommitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Reconcile the selected invoices against the selected transactions",
		Long: `Reconcile the selection. Transactions are allocated to invoices oldest
first; each pair takes the smaller of the invoice's open amount and the
transaction's remaining amount. On failure the selection is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.reconciler.CommitSelection(ctx)
				if err != nil {
					return err
				}
				return printEntry(a, entry)
			})
		},
	}
}

func reconcileMatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "match INVOICE_ID TRANSACTION_ID AMOUNT",
		Short: "Link one invoice and one transaction for an explicit amount",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := parseID(args[0])
			if err != nil {
				return err
			}
			transactionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.reconciler.Match(ctx, model.ReconciliationPair{InvoiceID: invoiceID, TransactionID: transactionID, Amount: amount})
				if err != nil {
					return err
				}
				return printEntry(a, entry)
			})
		},
	}
}

func reconcileAcceptCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "accept SUGGESTION",
		Short: "Commit a suggestion by list position or key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				key, err := resolveSuggestion(pendingSuggestions(a), args[0])
				if err != nil {
					return err
				}
				entry, err := a.reconciler.AcceptSuggestion(ctx, key)
				if err != nil {
					return err
				}
				return printEntry(a, entry)
			})
		},
	}
}

func reconcileRejectCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reject SUGGESTION",
		Short: "Dismiss a suggestion by list position or key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				key, err := resolveSuggestion(pendingSuggestions(a), args[0])
				if err != nil {
					return err
				}
				return a.reconciler.RejectSuggestion(ctx, key)
			})
		},
	}
}

func reconcileAutoCmd(g *globals) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Commit every pending suggestion above a confidence threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				t := threshold
				if !cmd.Flags().Changed("threshold") {
					t = a.session.Config().ConfidenceThreshold
				}
				entry, err := a.reconciler.AutoReconcile(ctx, t)
				if err != nil {
					return err
				}
				return printEntry(a, entry)
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum confidence (default: the configured threshold)")
	return cmd
}

func reconcileUndoCmd(g *globals) *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "undo [INVOICE_ID TRANSACTION_ID]",
		Short: "Remove a reconciliation link",
		Args: func(_ *cobra.Command, args []string) error {
			if last && len(args) != 0 {
				return fmt.Errorf("--last takes no arguments")
			}
			if !last && len(args) != 2 {
				return fmt.Errorf("pass INVOICE_ID TRANSACTION_ID or --last")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if last {
				return g.run(cmd, func(ctx context.Context, a *app) error {
					results, err := a.reconciler.UndoLast(ctx)
					if renderErr := printUndo(a, results); renderErr != nil && err == nil {
						err = renderErr
					}
					return err
				})
			}

			invoiceID, err := parseID(args[0])
			if err != nil {
				return err
			}
			transactionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.reconciler.Undo(ctx, invoiceID, transactionID)
				if err != nil {
					return err
				}
				return printUndo(a, []service.UndoResult{*res})
			})
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "undo every pair of the most recent reconciliation")
	return cmd
}

func printUndo(a *app, results []service.UndoResult) error {
	return a.out.Render(results, func(w io.Writer) error {
		for _, r := range results {
			amount := "unknown amount"
			if r.Amount.IsPositive() {
				amount = a.out.Money.Format(r.Amount)
			}
			if _, err := fmt.Fprintf(w, "Invoice %d unlinked from transaction %d (%s)\n", r.InvoiceID, r.TransactionID, amount); err != nil {
				return err
			}
		}
		return nil
	})
}

func reconcileRecentCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent reconciliations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				recent, err := a.db.RecentReconciliations(ctx, limit)
				if err != nil {
					return err
				}
				return a.out.Render(recent, func(w io.Writer) error {
					table := cli.NewTable("WHEN", "SOURCE", "PAIRS", "TOTAL", "ID")
					for _, e := range recent {
						table.Row(
							e.At.Local().Format("2006-01-02 15:04"),
							string(e.Source),
							strconv.Itoa(len(e.Pairs)),
							a.out.Money.Format(e.Total),
							e.ID,
						)
					}
					_, err := fmt.Fprintln(w, table.Render())
					return err
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum entries (0 for all)")
	return cmd
}

func reconcileClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the selection and pending suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(_ context.Context, a *app) error {
				a.session.ClearReconciliationState()
				a.out.Println(cli.FormatSuccess("Selection cleared"))
				return nil
			})
		},
	}
}

func reconcileConfigCmd(g *globals) *cobra.Command {
	var (
		threshold               float64
		maxSuggestions          int
		autoApply, learnPattern bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the matching policy",
		Long: `Show or change the matching policy sent with every matching request.
Changes are kept with the session; the config file only seeds new sessions.

Example:
  recon reconcile config --threshold 0.7 --pattern-learning=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(_ context.Context, a *app) error {
				cfg := a.session.Config()
				flags := cmd.Flags()
				if flags.Changed("threshold") {
					cfg.ConfidenceThreshold = threshold
				}
				if flags.Changed("max-suggestions") {
					cfg.MaxSuggestions = maxSuggestions
				}
				if flags.Changed("auto-apply") {
					cfg.AutoApply = autoApply
				}
				if flags.Changed("pattern-learning") {
					cfg.PatternLearning = learnPattern
				}
				if err := a.session.SetConfig(cfg); err != nil {
					return err
				}
				return a.out.Render(cfg, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Confidence threshold: %.2f\nMax suggestions:      %d\nAuto apply:           %t\nPattern learning:     %t\n",
						cfg.ConfidenceThreshold, cfg.MaxSuggestions, cfg.AutoApply, cfg.PatternLearning)
					return err
				})
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "confidence threshold in [0,1]")
	cmd.Flags().IntVar(&maxSuggestions, "max-suggestions", 0, "maximum suggestions per request")
	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "let the backend apply matches above the threshold")
	cmd.Flags().BoolVar(&learnPattern, "pattern-learning", false, "send accept/reject feedback to the backend")
	return cmd
}
