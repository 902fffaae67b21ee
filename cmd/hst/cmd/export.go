package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"fxHistory/internal/adapters/parquetfile"
	"fxHistory/internal/domain"
	"fxHistory/internal/history"
)

type exportOptions struct {
	timeframes []string
	out        string
}

func newExportCmd(g *globalOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <symbol>",
		Short: "Export stored bars to Parquet files",
		Long: `Write the bars of a symbol to one Parquet file per timeframe, named like the history
files (EURUSD60.parquet). Without --timeframe all standard timeframes are exported.

Examples:
  hst export EURUSD -o ./export
  hst export EURUSD -t M1,H1 -o ./export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().StringSliceVarP(&opts.timeframes, "timeframe", "t", nil, "timeframes to export (default all)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", ".", "output directory")
	return cmd
}

func runExport(cmd *cobra.Command, g *globalOptions, opts *exportOptions, symbol string) error {
	tfs := domain.StandardTimeframes[:]
	if len(opts.timeframes) > 0 {
		tfs = nil
		for _, s := range opts.timeframes {
			tf, err := domain.ParseTimeframe(s)
			if err != nil {
				return err
			}
			tfs = append(tfs, tf)
		}
	}

	reg, series, err := g.openSeries(cmd, symbol)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	for _, tf := range tfs {
		bars, err := series.ReadBars(tf, 0, 0)
		if err != nil {
			return err
		}
		base := history.FileName(series.Symbol(), tf)
		path := filepath.Join(opts.out, base[:len(base)-len(filepath.Ext(base))]+"."+parquetfile.Extension)
		if err := parquetfile.WriteBars(path, series.Symbol(), tf, bars); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bars -> %s\n", tf, len(bars), path)
	}
	return nil
}
