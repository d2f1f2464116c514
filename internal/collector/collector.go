// Package collector runs the daily collection pass: it reads each
// installation's metered production, looks up the day's weather, judges
// performance and stores the result.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/metering"
	"github.com/smukkama/solar-watch/internal/metrics"
	"github.com/smukkama/solar-watch/internal/performance"
	"github.com/smukkama/solar-watch/internal/weather"
	"github.com/smukkama/solar-watch/pkg/config"
)

// Meter fetches aggregated production for one POD and metric
type Meter interface {
	FetchDaily(ctx context.Context, podCode, obisCode, start, end string) (*metering.TimeSeries, error)
}

// Store persists observations
type Store interface {
	UpsertObservation(ctx context.Context, obs *database.Observation) (bool, error)
}

// Report summarizes one collection pass
type Report struct {
	Date            string `json:"date"`
	Stored          int    `json:"stored"`
	Underperforming int    `json:"underperforming"`
	Skipped         int    `json:"skipped"`
	Failed          int    `json:"failed"`
	Carried         int    `json:"carried"`
}

// Collector performs collection passes over a roster
type Collector struct {
	roster      *config.Roster
	meter       Meter
	weather     weather.Source
	store       Store
	evaluator   *performance.Evaluator
	publisher   events.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// New creates a collector. Installations are processed one at a time unless
// WithConcurrency raises the limit.
func New(roster *config.Roster, meter Meter, wx weather.Source, store Store, evaluator *performance.Evaluator, logger *slog.Logger) *Collector {
	return &Collector{
		roster:      roster,
		meter:       meter,
		weather:     wx,
		store:       store,
		evaluator:   evaluator,
		publisher:   events.NopPublisher{},
		logger:      logger,
		concurrency: 1,
	}
}

// WithConcurrency bounds how many installations are collected at once
func (c *Collector) WithConcurrency(n int) *Collector {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// WithPublisher announces finished passes
func (c *Collector) WithPublisher(p events.Publisher) *Collector {
	if p != nil {
		c.publisher = p
	}
	return c
}

// WithMetrics records collection counters
func (c *Collector) WithMetrics(m *metrics.Metrics) *Collector {
	c.metrics = m
	return c
}

// PreviousDay returns yesterday's date in loc as YYYY-MM-DD
func PreviousDay(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).AddDate(0, 0, -1).Format(database.DateLayout)
}

// Run collects every POD and metric for date. Failures for one identity are
// logged and counted without stopping the pass; only cancellation aborts it.
func (c *Collector) Run(ctx context.Context, date string) (*Report, error) {
	if _, err := database.ParseDate(date); err != nil {
		return nil, err
	}

	c.logger.Info("collecting data", "date", date, "pods", len(c.roster.Pods), "obis_codes", len(c.roster.OBISCodes))

	report := &Report{Date: date}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, pod := range c.roster.Pods {
		pod := pod
		g.Go(func() error {
			partial := c.collectPod(gctx, pod, date)
			mu.Lock()
			report.add(partial)
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("collection for %s interrupted: %w", date, err)
	}

	c.logger.Info("collection complete",
		"date", date,
		"stored", report.Stored,
		"underperforming", report.Underperforming,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"carried", report.Carried,
	)

	e := events.New(events.TypeCollected, "", date, int64(report.Stored))
	e.Message = fmt.Sprintf("stored %d observations, %d underperforming", report.Stored, report.Underperforming)
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.Warn("failed to publish collection event", "date", date, "error", err)
	}

	return report, nil
}

func (r *Report) add(o *Report) {
	r.Stored += o.Stored
	r.Underperforming += o.Underperforming
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Carried += o.Carried
}

func (c *Collector) collectPod(ctx context.Context, pod config.Pod, date string) *Report {
	log := c.logger.With("pod_code", pod.ID, "pod_name", pod.Name(), "date", date)
	log.Info("processing POD")

	report := &Report{}
	wx := c.lookupWeather(ctx, pod, date, log)

	for _, obis := range c.roster.OBISCodes {
		if ctx.Err() != nil {
			return report
		}
		ilog := log.With("obis_code", obis)

		ts, err := c.meter.FetchDaily(ctx, pod.ID, obis, date, date)
		if err != nil {
			c.metrics.FetchFailed("metering")
			ilog.Error("metering fetch failed", "error", err)
			report.Failed++
			continue
		}
		point, ok := ts.First()
		if !ok {
			ilog.Warn("empty time series, nothing stored")
			report.Skipped++
			continue
		}

		obs := c.buildObservation(pod, obis, date, ts.Unit, point, wx)
		carried, err := c.store.UpsertObservation(ctx, obs)
		if err != nil {
			ilog.Error("failed to store observation", "error", err)
			report.Failed++
			continue
		}

		report.Stored++
		if carried {
			report.Carried++
		}
		c.metrics.ObservationStored(obs.IsUnderperforming)

		if obs.IsUnderperforming {
			report.Underperforming++
			ilog.Warn("underperformance detected",
				"actual_kwh", obs.ValueKWh,
				"expected_kwh", *obs.ExpectedKWh,
				"ratio", *obs.PerformanceRatio,
			)
		} else {
			ilog.Info("stored observation", "value_kwh", obs.ValueKWh, "earnings", obs.Earnings)
		}
	}
	return report
}

func (c *Collector) lookupWeather(ctx context.Context, pod config.Pod, date string, log *slog.Logger) *performance.Weather {
	if !pod.HasLocation() {
		log.Warn("POD has no coordinates, skipping performance analysis")
		return nil
	}

	wx, err := c.weather.Daily(ctx, *pod.Latitude, *pod.Longitude, date)
	if err != nil {
		c.metrics.FetchFailed("weather")
		log.Error("weather lookup failed, performance analysis skipped", "error", err)
		return nil
	}

	log.Info("weather", "sun_hours", wx.SunHours, "irradiance_kwh_m2", wx.IrradianceKWhM2)
	return wx
}

func (c *Collector) buildObservation(pod config.Pod, obis, date, unit string, p metering.Point, wx *performance.Weather) *database.Observation {
	a := c.evaluator.Assess(p.Value, pod.PeakPowerKW, wx)

	return &database.Observation{
		PodCode:           pod.ID,
		PodName:           pod.Name(),
		OBISCode:          obis,
		OBISDescription:   "OBIS " + obis,
		Date:              date,
		Unit:              unit,
		ValueKWh:          p.Value,
		KWhPrice:          pod.PricePerKWh,
		Earnings:          p.Value * pod.PricePerKWh,
		StartedAt:         p.StartedAt,
		EndedAt:           p.EndedAt,
		Calculated:        p.Calculated,
		PeakPowerKW:       a.PeakPowerKW,
		SunHours:          a.SunHours,
		IrradianceKWhM2:   a.IrradianceKWhM2,
		ExpectedKWh:       a.ExpectedKWh,
		PerformanceRatio:  a.Ratio,
		IsUnderperforming: a.Underperforming,
	}
}
