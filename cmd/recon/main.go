package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/config"
)

var version = "dev"

// globals is the state shared by every command of one invocation.
type globals struct {
	stdout   io.Writer
	stderr   io.Writer
	v        *viper.Viper
	cfg      *config.Config
	cfgFile  string
	output   string
	envFiles []string
	progress bool
}

// reportedError is an error the user has already seen as a notification.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func newRootCmd(g *globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recon",
		Short: "🧾 Reconcile FatturaAnalyzer invoices against bank movements",
		Long: `recon mirrors invoices, bank transactions and counterparties from a
FatturaAnalyzer backend and drives invoice/transaction reconciliation from the
terminal. The last known server state and the reconciliation selection are kept
in a local database between runs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: g.initConfig,
	}
	rootCmd.SetOut(g.stdout)
	rootCmd.SetErr(g.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.cfgFile, "config", "", "config file (default: $HOME/.config/recon/config.yaml)")
	flags.StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "KEY=value files loaded into the environment")
	flags.StringVarP(&g.output, "output", "o", "text", "output format (text, json, yaml)")
	flags.BoolVar(&g.progress, "progress", true, "show progress bars")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("api-url", "", "backend base URL")

	_ = g.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = g.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = g.v.BindPFlag("api.base_url", flags.Lookup("api-url"))

	rootCmd.AddCommand(
		invoicesCmd(g),
		transactionsCmd(g),
		anagraphicsCmd(g),
		reconcileCmd(g),
		syncCmd(g),
		importCmd(g),
		exportCmd(g),
		analyticsCmd(g),
		cacheCmd(g),
		versionCmd(g),
	)
	return rootCmd
}

func newGlobals(stdout, stderr io.Writer) *globals {
	v := viper.New()
	config.SetDefaults(v)
	return &globals{stdout: stdout, stderr: stderr, v: v}
}

func main() {
	g := newGlobals(os.Stdout, os.Stderr)
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := handler.HandleInterrupts(context.Background())

	err := newRootCmd(g).ExecuteContext(ctx)
	stop()

	switch {
	case handler.WasInterrupted():
		os.Exit(cli.InterruptExitCode)
	case err != nil:
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func (g *globals) initConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadEnvFiles(g.envFiles...); err != nil {
		return err
	}

	if g.cfgFile != "" {
		g.v.SetConfigFile(g.cfgFile)
	} else {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		g.v.AddConfigPath(dir)
		g.v.AddConfigPath(".")
		g.v.SetConfigName("config")
		g.v.SetConfigType("yaml")
	}

	g.v.SetEnvPrefix(config.EnvPrefix)
	g.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	g.v.AutomaticEnv()

	if err := g.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(g.v)
	if err != nil {
		return err
	}
	g.cfg = cfg

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(g.stderr, level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(g.stdout, "recon %s\n", version)
			return err
		},
	}
}
