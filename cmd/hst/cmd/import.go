package cmd

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"fxHistory/internal/adapters/sqlite"
	"fxHistory/internal/domain"
	"fxHistory/internal/history"
	"fxHistory/internal/ports"
	"fxHistory/internal/utils"
)

type importOptions struct {
	csv         string
	db          string
	from, to    string
	digits      int
	format      int
	create      bool
	synchronize bool
}

func newImportCmd(g *globalOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import <symbol>",
		Short: "Import minute bars into the history files of a symbol",
		Long: `Read minute bars from a CSV file or the minute bar database and write them to all nine
timeframe files of the symbol. Bars are appended by default; with --sync they replace the stored
minute history from their first bar on.

Examples:
  hst import EURUSD --csv EURUSD_M1.csv --digits 5
  hst import EURUSD --db ./data/history.db --from 2024-01-01 --sync
  hst import USDJPY --csv USDJPY.csv --digits 3 --create --format 401`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.csv, "csv", "", "CSV file with minute bars")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite minute bar database")
	cmd.Flags().StringVar(&opts.from, "from", "", "first bar time for --db (date or Unix seconds)")
	cmd.Flags().StringVar(&opts.to, "to", "", "end of the --db range, exclusive")
	cmd.Flags().IntVar(&opts.digits, "digits", 5, "price digits of the symbol")
	cmd.Flags().IntVar(&opts.format, "format", int(domain.FormatV400), "bar format of new files (400 or 401)")
	cmd.Flags().BoolVar(&opts.create, "create", false, "truncate existing history before importing")
	cmd.Flags().BoolVar(&opts.synchronize, "sync", false, "replace overlapping minute history instead of appending")
	cmd.MarkFlagsMutuallyExclusive("csv", "db")
	cmd.MarkFlagsOneRequired("csv", "db")
	return cmd
}

func runImport(cmd *cobra.Command, g *globalOptions, opts *importOptions, symbol string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	format := domain.FormatVersion(opts.format)

	reg, log, err := g.registry(cmd, format)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	bars, err := loadImportBars(ctx, opts, symbol, log)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no bars to import")
		return nil
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	var series *history.SymbolSeries
	if opts.create {
		series, err = reg.Create(symbol, opts.digits, format, g.dir)
	} else {
		series, err = reg.GetOrCreate(symbol, opts.digits, g.dir)
	}
	if err != nil {
		return err
	}

	if opts.synchronize {
		err = series.Synchronize(bars)
	} else {
		err = series.AppendBars(bars)
	}
	if err != nil {
		return fmt.Errorf("import %s: %w", symbol, err)
	}
	if _, err := series.Close(); err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d bars into %s (%s .. %s)\n",
		len(bars), series.ServerDirectory(), formatTime(bars[0].Time), formatTime(bars[len(bars)-1].Time))
	return nil
}

func loadImportBars(ctx context.Context, opts *importOptions, symbol string, log ports.Logger) ([]domain.Bar, error) {
	if opts.csv != "" {
		f, err := os.Open(opts.csv)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return utils.ReadBarsCSV(f)
	}

	from, err := parseTimeArg(opts.from)
	if err != nil {
		return nil, err
	}
	to, err := parseTimeArg(opts.to)
	if err != nil {
		return nil, err
	}
	if to == 0 {
		to = math.MaxInt64
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: opts.db, Logger: log})
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	return repo.MinuteBars(ctx, symbol, from, to)
}
