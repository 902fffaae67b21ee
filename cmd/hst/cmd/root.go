package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fxHistory/internal/adapters/logger"
	"fxHistory/internal/domain"
	"fxHistory/internal/history"
	"fxHistory/internal/ports"
)

// globalOptions are the persistent flags shared by all subcommands.
type globalOptions struct {
	dir       string
	logLevel  string
	logFormat string
}

// NewRootCmd builds the hst command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "hst",
		Short: "Inspect and maintain MetaTrader 4 history files",
		Long: `hst works with the history of a MetaTrader 4 server directory.

It provides tools for:
  - Listing instrument metadata from symbols.raw files
  - Importing minute bars into the nine standard timeframe files
  - Synchronizing history with a bar feed
  - Dumping and exporting stored bars (CSV, Parquet)
  - Inspecting the state of a symbol's history files`,
		SilenceUsage: true,
	}

	defaultDir := os.Getenv("HISTORY_DIR")
	if defaultDir == "" {
		defaultDir = "./history"
	}
	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", defaultDir, "server directory holding the .hst files")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text or json)")

	rootCmd.AddCommand(
		newSymbolsCmd(),
		newTimeframesCmd(),
		newImportCmd(opts),
		newSyncCmd(opts),
		newDumpCmd(opts),
		newExportCmd(opts),
		newInfoCmd(opts),
	)
	return rootCmd
}

// Execute runs the command tree with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *globalOptions) logger(cmd *cobra.Command) (ports.Logger, error) {
	if o.logFormat == "json" {
		return logger.NewZapLogger(o.logLevel)
	}
	return logger.NewStdLoggerTo(cmd.ErrOrStderr(), logger.ParseLevel(o.logLevel)), nil
}

// registry creates a registry for one command run; the caller must CloseAll it.
func (o *globalOptions) registry(cmd *cobra.Command, format domain.FormatVersion) (*history.Registry, ports.Logger, error) {
	log, err := o.logger(cmd)
	if err != nil {
		return nil, nil, err
	}
	reg, err := history.NewRegistry(history.Options{Logger: log, DefaultFormat: format})
	if err != nil {
		return nil, nil, err
	}
	return reg, log, nil
}

// openSeries returns the existing series of a symbol in the history directory.
func (o *globalOptions) openSeries(cmd *cobra.Command, symbol string) (*history.Registry, *history.SymbolSeries, error) {
	reg, _, err := o.registry(cmd, 0)
	if err != nil {
		return nil, nil, err
	}
	s, err := reg.Get(symbol, o.dir)
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		return nil, nil, fmt.Errorf("no history for %s in %s", symbol, o.dir)
	}
	return reg, s, nil
}

func closeRegistry(reg *history.Registry) {
	reg.CloseAll(context.Background())
}

// parseTimeArg accepts a date, a date with time, or Unix seconds. Empty yields 0.
func parseTimeArg(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02T15:04", time.DateTime, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secs, nil
	}
	return 0, fmt.Errorf("invalid time %q", s)
}

func formatTime(t int64) string {
	if t == 0 {
		return "-"
	}
	return time.Unix(t, 0).UTC().Format(time.DateTime)
}
