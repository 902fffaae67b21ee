package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fxHistory/internal/domain"
)

func newTimeframesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeframes",
		Short: "List the standard MetaTrader timeframes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMINUTES\tCONSTANT\tFILE")
			for _, tf := range domain.StandardTimeframes {
				fmt.Fprintf(w, "%s\t%d\tPERIOD_%s\t<SYMBOL>%d.hst\n", tf, tf.Minutes(), tf, tf.Minutes())
			}
			return w.Flush()
		},
	}
}
