package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/app"
	"github.com/smukkama/solar-watch/internal/collector"
	"github.com/smukkama/solar-watch/internal/geocode"
	"github.com/smukkama/solar-watch/internal/lock"
	"github.com/smukkama/solar-watch/internal/logging"
	"github.com/smukkama/solar-watch/internal/metering"
	"github.com/smukkama/solar-watch/internal/notification"
	"github.com/smukkama/solar-watch/internal/performance"
	"github.com/smukkama/solar-watch/internal/report"
	"github.com/smukkama/solar-watch/internal/schedule"
	"github.com/smukkama/solar-watch/internal/weather"
	"github.com/smukkama/solar-watch/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Collect daily solar production and send underperformance alerts",
		Long: `collector fetches the previous day's production for every POD in the roster,
compares it with the output expected from that day's solar irradiance, stores the
result and emails a digest of pending underperformance alerts.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newCollectCmd(),
		newDaemonCmd(),
		newCheckEmailCmd(),
		newGeocodeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime is everything a collection job needs
type runtime struct {
	app      *app.App
	roster   *config.Roster
	location *time.Location
	notifier *notification.EmailNotifier
	manager  *alerting.Manager
	job      *collector.Job
}

func setup(ctx context.Context) (*runtime, error) {
	a, err := app.Load(ctx)
	if err != nil {
		return nil, err
	}
	rt, err := wire(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	return rt, nil
}

func wire(ctx context.Context, a *app.App) (*runtime, error) {
	cfg := a.Config

	roster, err := config.LoadRoster(cfg.Collector.RosterPath)
	if err != nil {
		return nil, err
	}
	if cfg.Leneda.APIKey == "" || cfg.Leneda.EnergyID == "" {
		return nil, errors.New("LENEDA_API_KEY and LENEDA_ENERGY_ID are required")
	}

	loc, err := time.LoadLocation(cfg.Weather.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_TIMEZONE %q: %w", cfg.Weather.Timezone, err)
	}

	var wx weather.Source = weather.NewClient(cfg.Weather)
	var guard collector.Guard
	rdb, err := a.Redis(ctx)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		wx = weather.NewCachedSource(wx, rdb, cfg.Weather.CacheTTL, a.Logger, a.Metrics)
		guard = lock.NewLocker(rdb, cfg.Redis.LockTTL)
		a.Logger.Info("redis enabled for weather cache and run lock", "addr", cfg.Redis.Addr)
	}

	notifier := notification.NewEmailNotifier(&cfg.SMTP, roster.RecipientsOr(cfg.SMTP.To), cfg.Performance.Threshold, a.Logger)
	if !notifier.Configured() {
		a.Logger.Warn("email notification not configured, alerts will stay pending")
	}
	manager := a.Manager(notifier)

	c := collector.New(
		roster,
		metering.NewClient(cfg.Leneda),
		wx,
		a.DB,
		performance.NewEvaluator(cfg.Performance.Efficiency, cfg.Performance.Threshold),
		a.Logger,
	).WithConcurrency(cfg.Collector.Concurrency).WithPublisher(a.Publisher).WithMetrics(a.Metrics)

	return &runtime{
		app:      a,
		roster:   roster,
		location: loc,
		notifier: notifier,
		manager:  manager,
		job:      collector.NewJob(c, manager, guard, a.Logger),
	}, nil
}

func newCollectCmd() *cobra.Command {
	var (
		date     string
		noNotify bool
		days     int
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.app.Close()

			if date == "" {
				date = collector.PreviousDay(time.Now(), rt.location)
			}
			notify := rt.app.Config.Collector.Notify && !noNotify
			if days <= 0 {
				days = rt.app.Config.Collector.SummaryDays
			}

			out := cmd.OutOrStdout()
			outcome, runErr := rt.job.Run(ctx, date, notify)
			if outcome != nil && outcome.Report != nil {
				r := outcome.Report
				fmt.Fprintf(out, "Collected %s: %d stored, %d underperforming, %d skipped, %d failed\n",
					r.Date, r.Stored, r.Underperforming, r.Skipped, r.Failed)
			}
			if outcome != nil && outcome.Dispatch != nil {
				fmt.Fprintf(out, "Alerts: %d pending, %d sent\n", outcome.Dispatch.Pending, outcome.Dispatch.Sent)
			}
			if runErr != nil {
				return runErr
			}

			rows, err := rt.manager.Summary(ctx, days, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return report.Summary(out, days, rows)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to collect (YYYY-MM-DD, default yesterday)")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not send the alert digest")
	cmd.Flags().IntVar(&days, "days", 0, "summary window in days (default SUMMARY_DAYS)")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	var (
		runNow      bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Collect every day at COLLECTOR_RUN_AT",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.app.Close()
			logger := rt.app.Logger
			cfg := rt.app.Config

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: rt.app.Metrics.Handler()}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			run := func() {
				date := collector.PreviousDay(time.Now(), rt.location)
				_, err := rt.job.Run(ctx, date, cfg.Collector.Notify)
				switch {
				case errors.Is(err, lock.ErrLockHeld):
					logger.Info("collection already running elsewhere, skipped", "date", date)
				case err != nil:
					logger.Error("scheduled collection failed", "date", date, "error", err)
				}
			}

			scheduler := schedule.New(1)
			scheduler.Start()
			defer scheduler.Stop()

			err = schedule.Daily(scheduler, "daily-collection", cfg.Collector.RunAt, run, func(next time.Time) {
				logger.Info("next collection scheduled", "at", next.Format(time.RFC3339))
			})
			if err != nil {
				return err
			}

			if runNow {
				go run()
			}

			logger.Info("collector daemon running", "run_at", cfg.Collector.RunAt, "pods", len(rt.roster.Pods))
			<-ctx.Done()
			logger.Info("shutting down collector daemon")
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "also collect immediately on start")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func newCheckEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-email",
		Short: "Verify the SMTP server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.app.Close()

			if err := rt.notifier.TestConnection(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SMTP server %s reachable\n", rt.app.Config.SMTP.Host)
			return nil
		},
	}
}

func newGeocodeCmd() *cobra.Command {
	var (
		url       string
		userAgent string
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "geocode [roster.yaml]",
		Short: "Look up missing POD coordinates and print the completed roster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path := cfg.Collector.RosterPath
			if len(args) == 1 {
				path = args[0]
			}

			roster, err := config.LoadRoster(path)
			if err != nil {
				return err
			}

			// stdout carries the roster
			logger := logging.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr())

			client := geocode.NewClient(url, userAgent, interval)
			n, err := client.FillRoster(cmd.Context(), roster, logger)
			if err != nil {
				return err
			}
			logger.Info("geocoding complete", "resolved", n)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(roster)
		},
	}

	cmd.Flags().StringVar(&url, "url", geocode.DefaultURL, "Nominatim base URL")
	cmd.Flags().StringVar(&userAgent, "user-agent", "solar-watch-geocoder", "User-Agent sent to Nominatim")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "delay between lookups")
	return cmd
}
