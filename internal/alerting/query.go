package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/smukkama/solar-watch/internal/database"
)

// DefaultSummaryDays is the reporting window of Summary
const DefaultSummaryDays = 7

// ParseStatus parses a status filter; empty means all
func ParseStatus(s string) (database.Status, error) {
	return database.ParseStatus(s)
}

// List returns underperforming records in the given lifecycle status,
// optionally restricted to one date and/or installation, newest first.
func (m *Manager) List(ctx context.Context, status database.Status, date, podCode string) ([]*database.Observation, error) {
	if err := (Scope{PodCode: podCode, Date: date}).Validate(); err != nil {
		return nil, err
	}

	alerts, err := m.store.Fetch(ctx, database.Filter{
		Status:              status,
		PodCode:             podCode,
		Date:                date,
		UnderperformingOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Stats returns the lifecycle counts over underperforming records
func (m *Manager) Stats(ctx context.Context) (*database.Counts, error) {
	counts, err := m.store.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert statistics: %w", err)
	}
	m.metrics.SetAlerts(counts.Pending, counts.Sent, counts.Acknowledged)
	return counts, nil
}

// Summary returns every record dated within the last days days, regardless
// of performance or lifecycle state
func (m *Manager) Summary(ctx context.Context, days int, now time.Time) ([]*database.Observation, error) {
	if days <= 0 {
		days = DefaultSummaryDays
	}
	since := now.AddDate(0, 0, -days).Format(database.DateLayout)

	rows, err := m.store.Fetch(ctx, database.Filter{Since: since})
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	return rows, nil
}
