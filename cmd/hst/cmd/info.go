package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fxHistory/internal/domain"
)

type infoOptions struct {
	output string
}

type storeInfo struct {
	Timeframe string `yaml:"timeframe"`
	Path      string `yaml:"path"`
	Format    int    `yaml:"format"`
	Bars      int64  `yaml:"bars"`
	Buffered  int    `yaml:"buffered"`
	LastBar   string `yaml:"lastBar"`
	LastSync  string `yaml:"lastSync"`
}

type seriesInfo struct {
	Symbol    string      `yaml:"symbol"`
	Server    string      `yaml:"server"`
	Directory string      `yaml:"directory"`
	Digits    int         `yaml:"digits"`
	LastSync  string      `yaml:"lastSync"`
	Stores    []storeInfo `yaml:"stores"`
}

func newInfoCmd(g *globalOptions) *cobra.Command {
	opts := &infoOptions{}
	cmd := &cobra.Command{
		Use:   "info <symbol>",
		Short: "Show the state of a symbol's history files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func runInfo(cmd *cobra.Command, g *globalOptions, opts *infoOptions, symbol string) error {
	reg, series, err := g.openSeries(cmd, symbol)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)

	// Attach every existing file so the summary covers all timeframes.
	for _, tf := range domain.StandardTimeframes {
		if _, err := series.LastBarTime(tf); err != nil {
			return err
		}
	}
	lastSync, err := series.LastSyncTime()
	if err != nil {
		return err
	}

	info := seriesInfo{
		Symbol:    series.Symbol(),
		Server:    series.ServerName(),
		Directory: series.ServerDirectory(),
		Digits:    series.Digits(),
		LastSync:  formatTime(lastSync),
	}
	for _, b := range series.BufferSummary() {
		info.Stores = append(info.Stores, storeInfo{
			Timeframe: b.Timeframe.String(),
			Path:      b.Path,
			Format:    int(b.Format),
			Bars:      b.Bars,
			Buffered:  b.Buffered,
			LastBar:   formatTime(b.LastBarTime),
			LastSync:  formatTime(b.LastSyncTime),
		})
	}

	out := cmd.OutOrStdout()
	switch opts.output {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		fmt.Fprintf(out, "%s @ %s (%s), %d digits, last sync %s\n", info.Symbol, info.Server, info.Directory, info.Digits, info.LastSync)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMEFRAME\tFORMAT\tBARS\tBUFFERED\tLAST BAR\tLAST SYNC")
		for _, s := range info.Stores {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n", s.Timeframe, s.Format, strconv.FormatInt(s.Bars, 10), s.Buffered, s.LastBar, s.LastSync)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}
}
