package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/slotwatch/slotwatch/internal/history"
)

func newHistoryCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored scans",
	}
	cmd.AddCommand(newHistoryListCommand(o), newHistoryShowCommand(o))
	return cmd
}

func newHistoryListCommand(o *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			scans, err := a.History.List(cmd.Context(), history.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("list scans: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(scans) == 0 {
				_, err := fmt.Fprintln(out, "no scans stored")
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWINDOW START\tMINUTES\tSTATIONS\tNOT CHECKED\tAVAILABLE")
			for _, s := range scans {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
					s.ID,
					s.Request.Start.Format(timeLayout),
					s.Request.DurationMinutes,
					len(s.Reports)+len(s.Failures),
					len(s.Failures),
					s.AvailableCount(),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of scans to list")
	return cmd
}

func newHistoryShowCommand(o *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show SCAN_ID",
		Short: "Show a stored scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			a, err := o.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.History.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get scan: %w", err)
			}
			return writeScan(cmd.OutOrStdout(), output, result)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	return cmd
}
