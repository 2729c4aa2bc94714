package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/gateway"
)

func syncCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Control the backend's cloud synchronization",
	}
	cmd.AddCommand(
		syncStatusCmd(g),
		syncActionCmd(g, "enable", "Enable cloud synchronization", (*gateway.Client).EnableSync),
		syncActionCmd(g, "disable", "Disable cloud synchronization", (*gateway.Client).DisableSync),
		syncActionCmd(g, "auto-start", "Start periodic synchronization", (*gateway.Client).StartAutoSync),
		syncActionCmd(g, "auto-stop", "Stop periodic synchronization", (*gateway.Client).StopAutoSync),
		syncRunCmd(g),
		syncForceCmd(g, "upload", "Overwrite the remote copy with the local database", (*gateway.Client).ForceUpload),
		syncForceCmd(g, "download", "Overwrite the local database with the remote copy", (*gateway.Client).ForceDownload),
		syncIntervalCmd(g),
		syncHistoryCmd(g),
		backupCmd(g),
	)
	return cmd
}

func syncStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the synchronization state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				status, err := a.gw.SyncStatus(ctx)
				if err != nil {
					return err
				}
				return a.out.Render(status, func(w io.Writer) error {
					deref := func(s *string) string {
						if s == nil || *s == "" {
							return "-"
						}
						return *s
					}
					body := fmt.Sprintf("Enabled:   %t\nAvailable: %t\nAuto sync: %t (every %s)\nLast sync: %s\nNext sync: %s",
						status.Enabled, status.ServiceAvailable, status.AutoSyncRunning,
						time.Duration(status.SyncInterval)*time.Second,
						deref(status.LastSyncTime), deref(status.NextSyncTime))
					_, err := fmt.Fprintln(w, cli.RenderBox("Cloud sync", body))
					return err
				})
			})
		},
	}
}

func syncActionCmd(g *globals, use, short string, action func(*gateway.Client, context.Context) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				msg, err := action(a.gw, ctx)
				if err != nil {
					return err
				}
				return printMessage(a, msg)
			})
		},
	}
}

func printMessage(a *app, msg string) error {
	return a.out.Render(map[string]string{"message": msg}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, cli.FormatSuccess(msg))
		return err
	})
}

func printSyncResult(a *app, res *gateway.SyncResult) error {
	// A download replaces the backend's data; nothing cached can be trusted.
	if res.SyncDirection != string(gateway.SyncUpload) {
		a.cache.Invalidate(cache.All)
	}
	return a.out.Render(res, func(w io.Writer) error {
		line := res.Message
		if res.DurationMS > 0 {
			line += cli.SubtleStyle.Render(fmt.Sprintf(" (%s)", time.Duration(res.DurationMS)*time.Millisecond))
		}
		_, err := fmt.Fprintln(w, cli.FormatSuccess(line))
		return err
	})
}

func syncRunCmd(g *globals) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := gateway.SyncDirection(direction)
			switch dir {
			case gateway.SyncAuto, gateway.SyncUpload, gateway.SyncDownload:
			default:
				return fmt.Errorf("%w: direction must be upload or download", common.ErrInvalidConfig)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.gw.ManualSync(ctx, dir)
				if err != nil {
					return err
				}
				return printSyncResult(a, res)
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "", "force upload or download (default: let the backend decide)")
	return cmd
}

func syncForceCmd(g *globals, use, short string, action func(*gateway.Client, context.Context) (*gateway.SyncResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := action(a.gw, ctx)
				if err != nil {
					return err
				}
				return printSyncResult(a, res)
			})
		},
	}
}

func syncIntervalCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "interval DURATION",
		Short: "Set the periodic synchronization interval",
		Long: `Set the periodic synchronization interval, e.g. 30m or 2h. The backend
accepts whole seconds from five minutes to one day.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("%w: interval %q: %w", common.ErrInvalidConfig, args[0], err)
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				msg, err := a.gw.SetAutoSyncInterval(ctx, interval)
				if err != nil {
					return err
				}
				return printMessage(a, msg)
			})
		},
	}
}

func syncHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent synchronization runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				events, err := a.gw.SyncHistory(ctx, limit)
				if err != nil {
					return err
				}
				return a.out.Render(events, func(w io.Writer) error {
					table := cli.NewTable("WHEN", "ACTION", "RESULT", "DURATION", "MESSAGE")
					for _, e := range events {
						result := cli.SuccessStyle.Render("ok")
						if !e.Success {
							result = cli.ErrorStyle.Render("failed")
						}
						table.Row(e.Timestamp, e.Action, result, (time.Duration(e.DurationMS) * time.Millisecond).String(), truncate(e.Message, 48))
					}
					_, err := fmt.Fprintln(w, table.Render())
					return err
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	return cmd
}

func backupCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backend backups",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				b, err := a.gw.CreateBackup(ctx)
				if err != nil {
					return err
				}
				return a.out.Render(b, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Backup %s created (%d files)", b.Name, len(b.Files))))
					return err
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				backups, err := a.gw.ListBackups(ctx)
				if err != nil {
					return err
				}
				return a.out.Render(backups, func(w io.Writer) error {
					table := cli.NewTable("NAME", "CREATED", "SIZE")
					for _, b := range backups {
						table.Row(b.Name, b.CreatedAt, strconv.FormatInt(b.Size, 10))
					}
					_, err := fmt.Fprintln(w, table.Render())
					return err
				})
			})
		},
	}

	restore := &cobra.Command{
		Use:   "restore NAME",
		Short: "Restore a backup, replacing the backend's data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				msg, err := a.gw.RestoreBackup(ctx, args[0])
				if err != nil {
					return err
				}
				a.cache.Invalidate(cache.All)
				return printMessage(a, msg)
			})
		},
	}

	remove := &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				msg, err := a.gw.DeleteBackup(ctx, args[0])
				if err != nil {
					return err
				}
				return printMessage(a, msg)
			})
		},
	}

	cmd.AddCommand(create, list, restore, remove)
	return cmd
}
