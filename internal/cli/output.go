package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slotwatch/slotwatch/internal/api/models"
	"github.com/slotwatch/slotwatch/internal/availability"
)

const (
	outputText = "text"
	outputJSON = "json"

	timeLayout = "2006-01-02 15:04 MST"
)

func checkOutput(format string) error {
	if format != outputText && format != outputJSON {
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, outputText, outputJSON)
	}
	return nil
}

func writeScan(w io.Writer, format string, result *availability.ScanResult) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models.NewScan(result))
	}
	return writeScanText(w, result)
}

// writeScanText prints one block per checked station, then the stations that
// could not be checked. A station missing from the output was not checked;
// it is never reported as having no vehicles.
func writeScanText(w io.Writer, result *availability.ScanResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	req := result.Request

	fmt.Fprintf(tw, "Window %s to %s (%d minutes)\n",
		req.Start.Format(timeLayout), req.End().Format(timeLayout), req.DurationMinutes)

	for i := range result.Reports {
		report := &result.Reports[i]
		name := report.StationName
		if name == "" {
			name = string(report.Endpoint)
		}
		fmt.Fprintf(tw, "\n%s (%s)\n", name, report.Endpoint)

		if len(report.Vehicles) == 0 {
			fmt.Fprintln(tw, "  no vehicles listed")
			continue
		}
		for _, v := range report.Vehicles {
			verdict := "taken"
			if v.IsAvailable {
				verdict = "AVAILABLE"
			}
			fmt.Fprintf(tw, "  %s\t%s %s\t%s\n", v.CarName, v.Status, v.Status.Label(), verdict)
		}
		if len(report.AvailableVehicles()) == 0 {
			fmt.Fprintln(tw, "  no vehicle is free for the whole window")
		}
	}

	if len(result.Failures) > 0 {
		fmt.Fprintf(tw, "\nCould not check %d station(s):\n", len(result.Failures))
		for _, f := range result.Failures {
			fmt.Fprintf(tw, "  %s\t%s\n", f.Endpoint, f.Error)
		}
	}

	fmt.Fprintf(tw, "\n%d vehicle(s) available across %d checked station(s)",
		result.AvailableCount(), len(result.Reports))
	if len(result.Failures) > 0 {
		fmt.Fprintf(tw, "; %d station(s) could not be checked", len(result.Failures))
	}
	fmt.Fprintf(tw, "\nScan %s\n", result.ID)

	return tw.Flush()
}
