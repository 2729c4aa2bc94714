package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/gateway"
)

func analyticsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"stats"},
		Short:   "Show backend reports",
	}
	cmd.AddCommand(
		importReportCmd(g, "dashboard", "Dashboard KPIs", (*gateway.Client).DashboardKPIs),
		importReportCmd(g, "reconciliation", "Reconciliation analytics", (*gateway.Client).ReconciliationAnalytics),
		importReportCmd(g, "health", "Reconciliation system health", (*gateway.Client).SystemHealth),
	)
	return cmd
}

// printReport renders an open-ended report as sorted key/value lines. Nested
// values are printed as compact JSON.
func printReport(a *app, title string, r gateway.Report) error {
	return a.out.Render(r, func(w io.Writer) error {
		keys := make([]string, 0, len(r))
		width := 0
		for k := range r {
			keys = append(keys, k)
			width = max(width, len(k))
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%-*s  %s\n", width, k, reportValue(r[k]))
		}
		body := strings.TrimRight(b.String(), "\n")
		if body == "" {
			body = cli.SubtleStyle.Render("empty report")
		}
		_, err := fmt.Fprintln(w, cli.RenderBox(cli.ChartIcon+" "+title, body))
		return err
	})
}

func reportValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return truncate(string(raw), 80)
	}
}
