package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
)

func cacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the local cache",
	}
	cmd.AddCommand(cacheStatusCmd(g), cacheInvalidateCmd(g))
	return cmd
}

type cacheEntry struct {
	LastFetch *time.Time       `json:"last_fetch" yaml:"last_fetch"`
	Type      cache.EntityType `json:"type" yaml:"type"`
	Freshness string           `json:"freshness" yaml:"freshness"`
	TTL       string           `json:"ttl" yaml:"ttl"`
	Items     int              `json:"items" yaml:"items"`
	Total     int              `json:"total" yaml:"total"`
}

type cacheStatus struct {
	Entries            []cacheEntry `json:"entries" yaml:"entries"`
	CachedSuggestions  int          `json:"cached_suggestions" yaml:"cached_suggestions"`
	PendingSuggestions int          `json:"pending_suggestions" yaml:"pending_suggestions"`
}

func collectCacheStatus(a *app) cacheStatus {
	counts := map[cache.EntityType][2]int{}
	inv := a.cache.Invoices()
	counts[cache.Invoices] = [2]int{len(inv.Data), inv.Total}
	txn := a.cache.Transactions()
	counts[cache.Transactions] = [2]int{len(txn.Data), txn.Total}
	ana := a.cache.Anagraphics()
	counts[cache.Anagraphics] = [2]int{len(ana.Data), ana.Total}
	opp := len(a.cache.Opportunities())
	counts[cache.Reconciliation] = [2]int{opp, opp}

	status := cacheStatus{
		CachedSuggestions:  a.cache.SuggestionCacheSize(),
		PendingSuggestions: len(pendingSuggestions(a)),
	}
	for _, t := range cache.EntityTypes {
		last := a.cache.LastFetch(t)
		status.Entries = append(status.Entries, cacheEntry{
			Type:      t,
			LastFetch: last,
			Freshness: a.policy.Freshness(last, t).String(),
			TTL:       a.policy.TTL(t).String(),
			Items:     counts[t][0],
			Total:     counts[t][1],
		})
	}
	return status
}

func cacheStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached collections and their freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(_ context.Context, a *app) error {
				status := collectCacheStatus(a)
				return a.out.Render(status, func(w io.Writer) error {
					table := cli.NewTable("TYPE", "ITEMS", "TOTAL", "FETCHED", "TTL", "STATE")
					for _, e := range status.Entries {
						fetched := "-"
						if e.LastFetch != nil {
							fetched = e.LastFetch.Local().Format("2006-01-02 15:04:05")
						}
						state := e.Freshness
						switch e.Freshness {
						case cache.Fresh.String():
							state = cli.SuccessStyle.Render(state)
						case cache.Stale.String():
							state = cli.WarningStyle.Render(state)
						default:
							state = cli.SubtleStyle.Render(state)
						}
						table.Row(string(e.Type), strconv.Itoa(e.Items), strconv.Itoa(e.Total), fetched, e.TTL, state)
					}
					_, err := fmt.Fprintf(w, "%s\n%s\n", table.Render(), cli.SubtleStyle.Render(fmt.Sprintf(
						"%d pending suggestions, %d transactions with cached suggestions",
						status.PendingSuggestions, status.CachedSuggestions)))
					return err
				})
			})
		},
	}
}

func cacheInvalidateCmd(g *globals) *cobra.Command {
	names := make([]string, 0, len(cache.EntityTypes)+1)
	for _, t := range cache.EntityTypes {
		names = append(names, string(t))
	}
	names = append(names, string(cache.All))

	return &cobra.Command{
		Use:       "invalidate [TYPE]",
		Short:     "Mark cached data as needing a refetch",
		Long:      "Mark cached data as needing a refetch. TYPE is one of " + strings.Join(names, ", ") + " (default all).",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := cache.All
			if len(args) == 1 {
				t = cache.EntityType(strings.ToLower(args[0]))
				if !validEntityType(t) {
					return fmt.Errorf("%w: cache type must be one of %s", common.ErrInvalidConfig, strings.Join(names, ", "))
				}
			}
			return g.run(cmd, func(_ context.Context, a *app) error {
				a.cache.Invalidate(t)
				a.out.Println(cli.FormatSuccess(fmt.Sprintf("Invalidated %s", t)))
				return nil
			})
		},
	}
}

func validEntityType(t cache.EntityType) bool {
	return t == cache.All || slices.Contains(cache.EntityTypes, t)
}
