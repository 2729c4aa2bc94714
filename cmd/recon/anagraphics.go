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

func anagraphicsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "anagraphics",
		Aliases: []string{"counterparties", "ana"},
		Short:   "List and inspect counterparties",
	}
	cmd.AddCommand(anagraphicsListCmd(g), anagraphicsShowCmd(g))
	return cmd
}

func anagraphicsListCmd(g *globals) *cobra.Command {
	var (
		kind, search, city string
		refresh            bool
		page, size         int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients and suppliers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				filter := model.AnagraphicsFilter{
					Type:   model.AnagraphicsType(kind),
					Search: search,
					City:   city,
					Page:   page,
					Size:   size,
				}
				paged := cmd.Flags().Changed("page") || cmd.Flags().Changed("size")
				if paged || filter != (model.AnagraphicsFilter{Page: page, Size: size}) {
					res, err := a.gw.ListAnagraphics(ctx, filter)
					if err != nil {
						return err
					}
					return printAnagraphics(a, res.Items, res.Total)
				}

				if refresh {
					if err := a.loader.Refresh(ctx, cache.Anagraphics); err != nil {
						return err
					}
				}
				coll, err := a.loader.Anagraphics(ctx)
				if err != nil {
					return err
				}
				return printAnagraphics(a, coll.Data, coll.Total)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Cliente or Fornitore")
	cmd.Flags().StringVar(&search, "search", "", "search denomination, VAT number or fiscal code")
	cmd.Flags().StringVar(&city, "city", "", "city")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the cached collection")
	cmd.Flags().IntVar(&page, "page", 1, "page for filtered queries")
	cmd.Flags().IntVar(&size, "size", 50, "page size for filtered queries")
	return cmd
}

func printAnagraphics(a *app, list []model.Anagraphics, total int) error {
	return a.out.Render(list, func(w io.Writer) error {
		table := cli.NewTable("ID", "TYPE", "DENOMINATION", "VAT", "CITY", "SCORE")
		for _, c := range list {
			table.Row(
				strconv.FormatInt(c.ID, 10),
				string(c.Type),
				truncate(c.Denomination, 36),
				c.VATNumber,
				c.City,
				strconv.FormatFloat(c.Score, 'f', 1, 64),
			)
		}
		_, err := fmt.Fprintf(w, "%s\n%s\n", table.Render(), cli.SubtleStyle.Render(fmt.Sprintf("%d of %d counterparties", len(list), total)))
		return err
	})
}

func anagraphicsShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a counterparty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				c, err := a.loader.Counterparty(ctx, id)
				if err != nil {
					return err
				}
				return a.out.Render(c, func(w io.Writer) error {
					body := fmt.Sprintf("Type:        %s\nVAT number:  %s\nFiscal code: %s\nCity:        %s\nScore:       %.1f",
						c.Type, c.VATNumber, c.FiscalCode, c.City, c.Score)
					_, err := fmt.Fprintln(w, cli.RenderBox(c.Denomination, body))
					return err
				})
			})
		},
	}
}
