package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/report"
	"github.com/smukkama/solar-watch/pkg/config"
)

// opener returns a manager and a function releasing its resources
type opener func(ctx context.Context) (*alerting.Manager, func() error, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:   "alertctl",
		Short: "Inspect and triage solar performance alerts",
		Long: `alertctl lists underperformance alerts and moves them through their
lifecycle. Acknowledged alerts are never emailed again; reset alerts become
pending and are included in the next digest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListCmd(open),
		newStatsCmd(open),
		newActionCmd(open, "acknowledge", "Acknowledge alerts so they are not sent again"),
		newActionCmd(open, "reset", "Reset alerts to pending so they are sent again"),
		newSummaryCmd(open),
		newWatchCmd(),
	)
	return root
}

// withManager opens the store for the duration of fn
func withManager(cmd *cobra.Command, open opener, fn func(ctx context.Context, m *alerting.Manager) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, m)
}

func newListCmd(open opener) *cobra.Command {
	var (
		status, pod, date string
		asJSON            bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := alerting.ParseStatus(status)
			if err != nil {
				return err
			}
			return withManager(cmd, open, func(ctx context.Context, m *alerting.Manager) error {
				alerts, err := m.List(ctx, st, date, pod)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), alerts)
				}
				return report.Alerts(cmd.OutOrStdout(), alerts)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "all, pending, sent or acknowledged")
	cmd.Flags().StringVar(&pod, "pod", "", "restrict to one POD code")
	cmd.Flags().StringVar(&date, "date", "", "restrict to one day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func newStatsCmd(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show alert counts by lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, open, func(ctx context.Context, m *alerting.Manager) error {
				counts, err := m.Stats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), counts)
				}
				return report.Stats(cmd.OutOrStdout(), counts)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// newActionCmd builds acknowledge and reset, which share flags and the
// --confirm requirement
func newActionCmd(open opener, action, short string) *cobra.Command {
	var (
		pod, date string
		confirm   bool
	)

	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("Must use --confirm flag to %s alerts", action)
			}
			scope := alerting.Scope{PodCode: pod, Date: date}
			if err := scope.Validate(); err != nil {
				return err
			}

			return withManager(cmd, open, func(ctx context.Context, m *alerting.Manager) error {
				var (
					result *alerting.ActionResult
					err    error
				)
				if action == "acknowledge" {
					result, err = m.Acknowledge(ctx, scope)
				} else {
					result, err = m.Reset(ctx, scope)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pod, "pod", "", "restrict to one POD code")
	cmd.Flags().StringVar(&date, "date", "", "restrict to one day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required to apply the change")
	return cmd
}

func newSummaryCmd(open opener) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show production of the last days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1, got %d", days)
			}
			return withManager(cmd, open, func(ctx context.Context, m *alerting.Manager) error {
				rows, err := m.Summary(ctx, days, time.Now())
				if err != nil {
					return err
				}
				return report.Summary(cmd.OutOrStdout(), days, rows)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", alerting.DefaultSummaryDays, "window in days")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow alert lifecycle events from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Kafka.Enabled() {
				return fmt.Errorf("KAFKA_BROKERS is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := events.NewConsumer(cfg.Kafka, group)
			defer consumer.Close()

			out := cmd.OutOrStdout()
			for {
				e, err := consumer.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Fprintln(out, formatEvent(e))
			}
		},
	}

	cmd.Flags().StringVar(&group, "group", "alertctl-watch", "Kafka consumer group")
	return cmd
}

func formatEvent(e *events.Event) string {
	line := fmt.Sprintf("%s %-20s affected=%d", e.OccurredAt.Format(time.RFC3339), e.Type, e.Affected)
	if e.PodCode != "" {
		line += " pod=" + e.PodCode
	}
	if e.Date != "" {
		line += " date=" + e.Date
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	return line
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
