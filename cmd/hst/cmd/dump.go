package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fxHistory/internal/domain"
	"fxHistory/internal/utils"
)

type dumpOptions struct {
	timeframe string
	from, to  string
	csv       bool
	limit     int
}

func newDumpCmd(g *globalOptions) *cobra.Command {
	opts := &dumpOptions{}
	cmd := &cobra.Command{
		Use:   "dump <symbol>",
		Short: "Print the stored bars of one timeframe",
		Long: `Print the bars of a symbol's history file, including the bar still being built.

Examples:
  hst dump EURUSD -t H1 --from 2024-01-01 --to 2024-01-31
  hst dump EURUSD -t M1 --csv > EURUSD_M1.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.timeframe, "timeframe", "t", "M1", "timeframe, e.g. M15, H1, PERIOD_D1 or 60")
	cmd.Flags().StringVar(&opts.from, "from", "", "first bar time (date or Unix seconds)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last bar time, inclusive")
	cmd.Flags().BoolVar(&opts.csv, "csv", false, "write CSV instead of a table")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "print only the newest n bars")
	return cmd
}

func runDump(cmd *cobra.Command, g *globalOptions, opts *dumpOptions, symbol string) error {
	tf, err := domain.ParseTimeframe(opts.timeframe)
	if err != nil {
		return err
	}
	from, err := parseTimeArg(opts.from)
	if err != nil {
		return err
	}
	to, err := parseTimeArg(opts.to)
	if err != nil {
		return err
	}

	reg, series, err := g.openSeries(cmd, symbol)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	bars, err := series.ReadBars(tf, from, to)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(bars) > opts.limit {
		bars = bars[len(bars)-opts.limit:]
	}

	if opts.csv {
		return utils.WriteBarsCSV(cmd.OutOrStdout(), bars, series.Digits())
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, strings.Join([]string{"TIME", "OPEN", "HIGH", "LOW", "CLOSE", "TICKS", "SPREAD", "VOLUME", ""}, "\t"))
	d := series.Digits()
	for _, b := range bars {
		fmt.Fprintf(w, "%s\t%.*f\t%.*f\t%.*f\t%.*f\t%d\t%d\t%d\t\n",
			formatTime(b.Time), d, b.Open, d, b.High, d, b.Low, d, b.Close, b.Ticks, b.Spread, b.Volume)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d bar%s\n", len(bars), plural(len(bars)))
	return nil
}
