package collector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/notification"
)

// Dispatcher sends pending alerts
type Dispatcher interface {
	DispatchPending(ctx context.Context) (*alerting.DispatchResult, error)
}

// Guard serializes runs across processes
type Guard interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Job is one scheduled unit of work: collect a day, then notify
type Job struct {
	collector  *Collector
	dispatcher Dispatcher
	guard      Guard
	logger     *slog.Logger
}

// NewJob creates a job. dispatcher and guard may be nil.
func NewJob(c *Collector, dispatcher Dispatcher, guard Guard, logger *slog.Logger) *Job {
	return &Job{collector: c, dispatcher: dispatcher, guard: guard, logger: logger}
}

// Outcome is what a job run produced
type Outcome struct {
	Report   *Report
	Dispatch *alerting.DispatchResult
}

// Run collects date and, when notify is set, dispatches pending alerts.
// A notifier without configuration is logged, not returned.
func (j *Job) Run(ctx context.Context, date string, notify bool) (*Outcome, error) {
	out := &Outcome{}
	work := func(ctx context.Context) error {
		report, err := j.collector.Run(ctx, date)
		out.Report = report
		if err != nil {
			return err
		}

		if !notify || j.dispatcher == nil {
			return nil
		}
		out.Dispatch, err = j.dispatcher.DispatchPending(ctx)
		if errors.Is(err, notification.ErrNotConfigured) {
			pending := 0
			if out.Dispatch != nil {
				pending = out.Dispatch.Pending
			}
			j.logger.Warn("email not configured, alerts stay pending", "pending", pending)
			return nil
		}
		return err
	}

	if j.guard == nil {
		return out, work(ctx)
	}
	return out, j.guard.Do(ctx, "collect:"+date, work)
}
