package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/gateway"
	"github.com/Veraticus/fattura-reconcile/internal/notify"
	"github.com/Veraticus/fattura-reconcile/internal/session"
	"github.com/Veraticus/fattura-reconcile/internal/storage"
	"github.com/Veraticus/fattura-reconcile/internal/workflow"
)

// app wires one invocation: local state restored from storage, the backend
// gateway, and the workflows operating on both.
type app struct {
	db         *storage.SQLiteStorage
	gw         *gateway.Client
	cache      *cache.Store
	policy     *cache.Policy
	session    *session.Store
	notes      *notify.Center
	loader     *workflow.Loader
	reconciler *workflow.Reconciler
	out        *cli.Output
	progress   *cli.Progress
}

func (g *globals) newApp(ctx context.Context) (*app, error) {
	cfg := g.cfg
	format, err := cli.ParseFormat(g.output)
	if err != nil {
		return nil, err
	}

	db, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{
		db:       db,
		cache:    cache.NewStore(),
		policy:   cache.NewPolicy(cfg.Cache.BaseTTL, cfg.Cache.Multipliers),
		session:  session.NewStore(cfg.Reconciliation),
		notes:    notify.NewCenter(notify.WithDuration(0)),
		out:      cli.NewOutput(g.stdout, format, cli.NewMoney(cfg.Display.Locale, cfg.Display.Currency)),
		progress: cli.NewProgress(g.stderr, g.progress && format == cli.FormatText),
	}

	if err := a.restore(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a.gw, err = gateway.New(gateway.Config{
		BaseURL:  cfg.API.BaseURL,
		Token:    cfg.API.Token,
		Timeout:  cfg.API.Timeout,
		Retry:    cfg.Retry,
		Progress: a.progress.Upload,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.loader = workflow.NewLoader(a.gw, a.cache, a.policy, a.notes,
		workflow.WithPageSize(cfg.Loader.PageSize),
		workflow.WithMaxItems(cfg.Loader.MaxItems))
	a.reconciler = workflow.NewReconciler(a.gw, a.cache, a.session, a.notes,
		workflow.WithProgress(func(total int, label string) workflow.Progress {
			return a.progress.Bar(total, label)
		}))
	return a, nil
}

func (a *app) restore(ctx context.Context) error {
	snap, err := a.db.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to restore cache: %w", err)
	default:
		a.cache.Restore(snap)
	}

	sess, err := a.db.LoadSession(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to restore session: %w", err)
	default:
		a.session.Restore(sess)
	}
	return nil
}

// close joins background refreshes, persists local state even when ctx was
// canceled, and prints the queued notifications.
func (a *app) close(ctx context.Context, w io.Writer) error {
	a.loader.Wait()

	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := a.db.SaveSnapshot(ctx, a.cache.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.SaveSession(ctx, a.session.Snapshot()); err != nil {
		errs = append(errs, err)
	}
	cli.PrintNotifications(w, a.notes)
	a.notes.Close()
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// run executes fn with a fully wired app and persists state afterwards. An
// error fn returns after an error notification is reported only once.
func (g *globals) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := g.newApp(ctx)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)
	reported := hasError(a.notes)
	if closeErr := a.close(ctx, g.stderr); closeErr != nil {
		slog.Error("Failed to save local state", "error", closeErr)
	}

	if runErr != nil && reported {
		return reportedError{runErr}
	}
	return runErr
}

func hasError(notes *notify.Center) bool {
	for _, n := range notes.List() {
		if n.Type == notify.Error {
			return true
		}
	}
	return false
}
