// Package report renders alert and summary tables for terminal output.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Alerts writes one row per alert followed by a total line
func Alerts(w io.Writer, alerts []*database.Observation) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "No alerts found.")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tPOD\tNAME\tACTUAL kWh\tEXPECTED kWh\tPERF\tSTATUS")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			a.Date, a.PodCode, a.PodName, a.ValueKWh,
			optional(a.ExpectedKWh, 1, "%.2f"), optional(a.PerformanceRatio, 100, "%.1f%%"),
			alerting.StateOf(a))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal: %d alerts\n", len(alerts))
	return err
}

// Stats writes the lifecycle counts
func Stats(w io.Writer, c *database.Counts) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Total alerts:\t%d\n", c.Total)
	fmt.Fprintf(tw, "Pending:\t%d\n", c.Pending)
	fmt.Fprintf(tw, "Sent:\t%d\n", c.Sent)
	fmt.Fprintf(tw, "Acknowledged:\t%d\n", c.Acknowledged)
	return tw.Flush()
}

// Summary writes the recent-days production table with earnings totals
func Summary(w io.Writer, days int, rows []*database.Observation) error {
	fmt.Fprintf(w, "Summary for the last %d days\n\n", days)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data collected.")
		return err
	}

	var totalKWh, totalEarnings float64
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tPOD\tNAME\tOBIS\tkWh\tEARNINGS\tEXPECTED kWh\tPERF\t")
	for _, o := range rows {
		flag := ""
		if o.IsUnderperforming {
			flag = "⚠"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\t%s\n",
			o.Date, o.PodCode, o.PodName, o.OBISCode, o.ValueKWh, o.Earnings,
			optional(o.ExpectedKWh, 1, "%.2f"), optional(o.PerformanceRatio, 100, "%.1f%%"), flag)
		totalKWh += o.ValueKWh
		totalEarnings += o.Earnings
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal: %.2f kWh, %.2f earnings over %d records\n", totalKWh, totalEarnings, len(rows))
	return err
}

func optional(v *float64, scale float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v*scale)
}
