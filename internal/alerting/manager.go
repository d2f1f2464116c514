package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/metrics"
)

// Store is the subset of the record store the lifecycle needs
type Store interface {
	Fetch(ctx context.Context, f database.Filter) ([]*database.Observation, error)
	UpdateFlags(ctx context.Context, scope database.Scope, update database.FlagUpdate) (int64, error)
	CountByState(ctx context.Context) (*database.Counts, error)
}

// Notifier delivers one digest covering a batch of alerts
type Notifier interface {
	SendAlertDigest(ctx context.Context, alerts []*database.Observation) error
}

// ActionResult is the outcome of a bulk transition
type ActionResult struct {
	Affected int64  `json:"affected_records"`
	Message  string `json:"message"`
}

// DispatchResult is the outcome of a notification cycle
type DispatchResult struct {
	Pending int   `json:"pending"`
	Sent    int64 `json:"sent"`
}

// Manager drives alert lifecycle transitions
type Manager struct {
	store     Store
	notifier  Notifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewManager creates a lifecycle manager. A nil publisher discards events
// and a nil notifier makes DispatchPending fail.
func NewManager(store Store, notifier Notifier, publisher events.Publisher, logger *slog.Logger) *Manager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Manager{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// WithMetrics attaches transition counters
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

// Acknowledge marks every underperforming, not yet acknowledged record in
// scope as acknowledged. The sent flag is left alone.
func (m *Manager) Acknowledge(ctx context.Context, scope Scope) (*ActionResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	ack := true
	affected, err := m.store.UpdateFlags(ctx, database.Scope{
		PodCode:             scope.PodCode,
		Date:                scope.Date,
		UnderperformingOnly: true,
		UnacknowledgedOnly:  true,
	}, database.FlagUpdate{Acknowledged: &ack})
	if err != nil {
		m.logger.Error("failed to acknowledge alerts", "pod_code", scope.PodCode, "date", scope.Date, "error", err)
		return nil, fmt.Errorf("failed to acknowledge alerts: %w", err)
	}

	result := &ActionResult{
		Affected: affected,
		Message:  fmt.Sprintf("%s (%d records)", scope.describe("Acknowledged"), affected),
	}
	m.record(ctx, events.TypeAcknowledged, "acknowledged", scope, result)
	return result, nil
}

// Reset clears both lifecycle flags on every record in scope so the alerts
// become pending again. Underperformance is not checked.
func (m *Manager) Reset(ctx context.Context, scope Scope) (*ActionResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	unset := false
	affected, err := m.store.UpdateFlags(ctx, database.Scope{
		PodCode: scope.PodCode,
		Date:    scope.Date,
	}, database.FlagUpdate{Sent: &unset, Acknowledged: &unset})
	if err != nil {
		m.logger.Error("failed to reset alerts", "pod_code", scope.PodCode, "date", scope.Date, "error", err)
		return nil, fmt.Errorf("failed to reset alerts: %w", err)
	}

	result := &ActionResult{
		Affected: affected,
		Message:  fmt.Sprintf("%s (%d records)", scope.describe("Reset"), affected),
	}
	m.record(ctx, events.TypeReset, "reset", scope, result)
	return result, nil
}

// MarkSent flags exactly the given identities as sent. Records that are not
// underperforming are skipped.
func (m *Manager) MarkSent(ctx context.Context, ids []database.Identity) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	sent := true
	affected, err := m.store.UpdateFlags(ctx, database.Scope{
		Identities:          ids,
		UnderperformingOnly: true,
	}, database.FlagUpdate{Sent: &sent})
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts sent: %w", err)
	}

	m.metrics.Transition("sent", affected)
	e := events.New(events.TypeSent, "", "", affected)
	e.Identities = ids
	m.publish(ctx, e)
	return affected, nil
}

// DispatchPending sends one digest for every pending alert and marks those
// alerts sent once delivery succeeds. On delivery failure they stay pending
// for the next cycle.
func (m *Manager) DispatchPending(ctx context.Context) (*DispatchResult, error) {
	pending, err := m.store.Fetch(ctx, database.Filter{
		Status:              database.StatusPending,
		UnderperformingOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pending alerts: %w", err)
	}

	result := &DispatchResult{Pending: len(pending)}
	if len(pending) == 0 {
		m.logger.Info("no pending alerts to send")
		return result, nil
	}
	if m.notifier == nil {
		return result, fmt.Errorf("no notifier configured for %d pending alerts", len(pending))
	}

	if err := m.notifier.SendAlertDigest(ctx, pending); err != nil {
		m.metrics.Notification(false)
		m.logger.Error("failed to send alert digest", "pending", len(pending), "error", err)
		return result, fmt.Errorf("failed to send alert digest: %w", err)
	}
	m.metrics.Notification(true)

	ids := make([]database.Identity, len(pending))
	for i, o := range pending {
		ids[i] = o.Identity()
	}

	result.Sent, err = m.MarkSent(ctx, ids)
	if err != nil {
		m.logger.Error("alert digest sent but records not marked", "pending", len(pending), "error", err)
		return result, err
	}

	m.logger.Info("alert digest sent", "alerts", len(pending), "marked", result.Sent)
	return result, nil
}

func (m *Manager) record(ctx context.Context, t events.Type, transition string, scope Scope, result *ActionResult) {
	m.logger.Info(result.Message, "pod_code", scope.PodCode, "date", scope.Date, "affected", result.Affected)
	m.metrics.Transition(transition, result.Affected)

	e := events.New(t, scope.PodCode, scope.Date, result.Affected)
	e.Message = result.Message
	m.publish(ctx, e)
}

// publish never fails the transition that triggered it
func (m *Manager) publish(ctx context.Context, e *events.Event) {
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish lifecycle event", "type", e.Type, "error", err)
	}
}
