package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slotwatch/slotwatch/internal/scanrequest"
)

func newScanCommand(o *options) *cobra.Command {
	var (
		start    string
		duration int
		stations []string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check stations for vehicles free for the whole window",
		Example: `  slotwatch scan --start "2021-01-02 14:30" --duration 90
  slotwatch scan --start 2021-01-02T14:30:00+09:00 --duration 60 --station U882 --station V558 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			a, err := o.loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req, endpoints, err := a.Requests.Build(scanrequest.Input{
				Start:           start,
				DurationMinutes: duration,
				Stations:        stations,
			})
			if err != nil {
				return err
			}
			if err := a.Config.Credentials.Timescar().Validate(); err != nil {
				return fmt.Errorf("%w (set TIMES_CARDNUM_1, TIMES_CARDNUM_2 and TIMES_PASSWORD)", err)
			}

			result, err := a.Scanner.Scan(cmd.Context(), endpoints, req)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}

			if err := a.History.Save(cmd.Context(), result); err != nil {
				a.Logger.Warn().Err(err).Str("scan_id", result.ID).Msg("failed to store scan")
			}

			return writeScan(cmd.OutOrStdout(), output, result)
		},
	}

	cmd.Flags().StringVarP(&start, "start", "s", "", `window start, "YYYY-MM-DD HH:MM" in the configured time zone or RFC 3339`)
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "window length in minutes, a multiple of 15")
	cmd.Flags().StringArrayVar(&stations, "station", nil, "station code or URL (repeatable; default: configured stations)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text or json")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("duration")

	return cmd
}
