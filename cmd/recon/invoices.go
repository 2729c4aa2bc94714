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

func invoicesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoices",
		Aliases: []string{"invoice", "inv"},
		Short:   "List and inspect invoices",
	}
	cmd.AddCommand(invoicesListCmd(g), invoicesShowCmd(g), invoicesSetStatusCmd(g))
	return cmd
}

func invoicesListCmd(g *globals) *cobra.Command {
	var (
		status, invType, search, from, to string
		counterparty                      int64
		refresh                           bool
		page, size                        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Long: `List invoices. Without filters the cached collection is shown and
refreshed according to the cache policy; with filters the backend is queried
directly.

Examples:
  recon invoices list
  recon invoices list --status open --type Attiva
  recon invoices list --from 2024-01-01 --to 2024-03-31 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				filter := model.InvoiceFilter{
					Type:          model.InvoiceType(invType),
					Search:        search,
					AnagraphicsID: counterparty,
					Page:          page,
					Size:          size,
				}
				if status != "" {
					s, err := parsePaymentStatus(status)
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

				paged := cmd.Flags().Changed("page") || cmd.Flags().Changed("size")
				if paged || filter != (model.InvoiceFilter{Page: page, Size: size}) {
					res, err := a.gw.ListInvoices(ctx, filter)
					if err != nil {
						return err
					}
					return printInvoices(a, res.Items, res.Total)
				}

				if refresh {
					if err := a.loader.Refresh(ctx, cache.Invoices); err != nil {
						return err
					}
				}
				coll, err := a.loader.Invoices(ctx)
				if err != nil {
					return err
				}
				return printInvoices(a, coll.Data, coll.Total)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "payment status (open, partial, paid, overdue, or the backend value)")
	cmd.Flags().StringVar(&invType, "type", "", "invoice type (Attiva, Passiva)")
	cmd.Flags().StringVar(&search, "search", "", "search document number or counterparty")
	cmd.Flags().StringVar(&from, "from", "", "document date from (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "document date to (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&counterparty, "anagraphics", 0, "counterparty id")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the cached collection")
	cmd.Flags().IntVar(&page, "page", 1, "page for filtered queries")
	cmd.Flags().IntVar(&size, "size", 50, "page size for filtered queries")
	return cmd
}

func printInvoices(a *app, invoices []model.Invoice, total int) error {
	return a.out.Render(invoices, func(w io.Writer) error {
		table := cli.NewTable("ID", "NUMBER", "DATE", "COUNTERPARTY", "TOTAL", "OPEN", "STATUS")
		for _, inv := range invoices {
			table.Row(
				strconv.FormatInt(inv.ID, 10),
				inv.DocNumber,
				formatDate(&inv.DocDate),
				truncate(inv.CounterpartyName, 28),
				a.out.Money.Format(inv.TotalAmount),
				a.out.Money.Format(inv.OpenAmount),
				cli.PaymentStatus(inv.PaymentStatus),
			)
		}
		_, err := fmt.Fprintf(w, "%s\n%s\n", table.Render(), cli.SubtleStyle.Render(fmt.Sprintf("%d of %d invoices", len(invoices), total)))
		return err
	})
}

type invoiceDetail struct {
	Links   []model.ReconciliationLink `json:"links" yaml:"links"`
	Invoice model.Invoice              `json:"invoice" yaml:"invoice"`
}

func invoicesShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an invoice and its reconciliation links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				inv, err := a.loader.Invoice(ctx, id)
				if err != nil {
					return err
				}
				links, err := a.gw.InvoiceLinks(ctx, id)
				if err != nil {
					return err
				}
				return a.out.Render(invoiceDetail{Invoice: inv, Links: links}, func(w io.Writer) error {
					body := fmt.Sprintf("Type:         %s\nDate:         %s\nDue:          %s\nCounterparty: %s\nTotal:        %s\nPaid:         %s\nOpen:         %s\nStatus:       %s",
						inv.Type, formatDate(&inv.DocDate), formatDate(inv.DueDate), inv.CounterpartyName,
						a.out.Money.Format(inv.TotalAmount), a.out.Money.Format(inv.PaidAmount),
						a.out.Money.Format(inv.OpenAmount), inv.PaymentStatus)
					if _, err := fmt.Fprintln(w, cli.RenderBox("Invoice "+inv.DocNumber, body)); err != nil {
						return err
					}
					return printLinks(w, a, links)
				})
			})
		},
	}
}

func printLinks(w io.Writer, a *app, links []model.ReconciliationLink) error {
	if len(links) == 0 {
		_, err := fmt.Fprintln(w, cli.SubtleStyle.Render("No reconciliation links"))
		return err
	}
	table := cli.NewTable(cli.LinkIcon+" LINK", "INVOICE", "TRANSACTION", "AMOUNT", "DATE")
	for _, l := range links {
		created := l.CreatedAt
		table.Row(
			strconv.FormatInt(l.ID, 10),
			strconv.FormatInt(l.InvoiceID, 10),
			strconv.FormatInt(l.TransactionID, 10),
			a.out.Money.Format(l.Amount),
			formatDate(&created),
		)
	}
	_, err := fmt.Fprintln(w, table.Render())
	return err
}

func invoicesSetStatusCmd(g *globals) *cobra.Command {
	var paid string
	cmd := &cobra.Command{
		Use:   "set-status ID STATUS",
		Short: "Set an invoice's payment status",
		Long: `Set an invoice's payment status. STATUS is one of open, partial, paid,
overdue, insolvent, reconciled, or the backend value (e.g. "Pagata Parz.").`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status, err := parsePaymentStatus(args[1])
			if err != nil {
				return err
			}
			paidAmount, err := optionalAmount(paid)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				return a.reconciler.UpdateInvoiceStatus(ctx, id, status, paidAmount)
			})
		},
	}
	cmd.Flags().StringVar(&paid, "paid", "", "paid amount (derived by the backend when omitted)")
	return cmd
}
