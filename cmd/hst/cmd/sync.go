package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fxHistory/config"
	"fxHistory/internal/adapters/sqlite"
	"fxHistory/internal/app"
	"fxHistory/internal/history"
)

type syncOptions struct {
	symbols string
	feed    string
}

func newSyncCmd(g *globalOptions) *cobra.Command {
	opts := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass against the configured bar feed",
		Long: `Synchronize the history of the configured symbols once. Settings are read from the
environment (.env) like the sync daemon; flags override them.

Examples:
  hst sync
  hst sync --symbols EURUSD:5,USDJPY:3 --feed dukascopy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.symbols, "symbols", "", "symbols to synchronize, e.g. EURUSD:5,USDJPY:3")
	cmd.Flags().StringVar(&opts.feed, "feed", "", "bar feed: sqlite, binance or dukascopy")
	return cmd
}

func runSync(cmd *cobra.Command, g *globalOptions, opts *syncOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dir") {
		cfg.HistoryDir = g.dir
	}
	if opts.symbols != "" {
		if cfg.Symbols, err = config.ParseSymbols(opts.symbols, cfg.DefaultDigits); err != nil {
			return err
		}
	}
	if opts.feed != "" {
		cfg.Feed = opts.feed
	}

	log, err := g.logger(cmd)
	if err != nil {
		return err
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
	if err != nil {
		return err
	}
	defer repo.Close()

	source, err := app.NewBarSource(cfg, log, repo)
	if err != nil {
		return err
	}
	reg, err := history.NewRegistry(history.Options{Logger: log, DefaultFormat: cfg.Format})
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	deps := app.Deps{Logger: log, Registry: reg, Source: source, Feed: cfg.Feed, Runs: repo}
	if cfg.Feed != config.FeedSQLite {
		deps.Archive = repo
	}
	svc, err := app.NewSyncService(cfg, deps)
	if err != nil {
		return err
	}

	if err := svc.CheckFeed(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tRUN\tSYNCHRONIZED\tAPPENDED\tLAST SYNC\tERROR")
	var errs []error
	for _, spec := range cfg.Symbols {
		run, err := svc.SyncSymbol(ctx, spec)
		if err != nil {
			errs = append(errs, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", run.Symbol, run.ID, run.Synchronized, run.Appended, formatTime(run.LastSyncTime), run.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
