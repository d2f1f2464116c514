package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const observationColumns = `
	id, pod_code, pod_name, obis_code, obis_description, date, unit,
	value_kwh, kwh_price, earnings, started_at, ended_at, calculated,
	peak_power_kw, sun_hours, solar_irradiance_kwh_m2, expected_kwh, performance_ratio,
	is_underperforming, alert_sent, alert_acknowledged, created_at`

// UpsertObservation inserts or replaces the observation for its identity.
// The stored acknowledgement survives the write and alert_sent is always
// cleared. It reports whether an acknowledgement was carried forward.
func (db *DB) UpsertObservation(ctx context.Context, obs *Observation) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	acknowledged, err := db.acknowledged(ctx, tx, obs.Identity())
	if err != nil {
		return false, err
	}

	// alert_acknowledged is never touched on conflict
	query := `
		INSERT INTO energy_data (
			pod_code, pod_name, obis_code, obis_description, date, unit,
			value_kwh, kwh_price, earnings, started_at, ended_at, calculated,
			peak_power_kw, sun_hours, solar_irradiance_kwh_m2, expected_kwh,
			performance_ratio, is_underperforming, alert_sent, alert_acknowledged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (pod_code, obis_code, date) DO UPDATE
		SET pod_name = excluded.pod_name,
		    obis_description = excluded.obis_description,
		    unit = excluded.unit,
		    value_kwh = excluded.value_kwh,
		    kwh_price = excluded.kwh_price,
		    earnings = excluded.earnings,
		    started_at = excluded.started_at,
		    ended_at = excluded.ended_at,
		    calculated = excluded.calculated,
		    peak_power_kw = excluded.peak_power_kw,
		    sun_hours = excluded.sun_hours,
		    solar_irradiance_kwh_m2 = excluded.solar_irradiance_kwh_m2,
		    expected_kwh = excluded.expected_kwh,
		    performance_ratio = excluded.performance_ratio,
		    is_underperforming = excluded.is_underperforming,
		    alert_sent = FALSE,
		    created_at = CURRENT_TIMESTAMP
	`

	_, err = tx.ExecContext(ctx, db.rebind(query),
		obs.PodCode,
		obs.PodName,
		obs.OBISCode,
		obs.OBISDescription,
		obs.Date,
		obs.Unit,
		obs.ValueKWh,
		obs.KWhPrice,
		obs.Earnings,
		obs.StartedAt,
		obs.EndedAt,
		obs.Calculated,
		obs.PeakPowerKW,
		obs.SunHours,
		obs.IrradianceKWhM2,
		obs.ExpectedKWh,
		obs.PerformanceRatio,
		obs.IsUnderperforming,
		acknowledged,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert observation %s: %w", obs.Identity(), err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit observation %s: %w", obs.Identity(), err)
	}

	obs.AlertSent = false
	obs.AlertAcknowledged = acknowledged
	return acknowledged, nil
}

// GetAcknowledged returns the stored acknowledgement flag, false when the
// identity has never been written
func (db *DB) GetAcknowledged(ctx context.Context, id Identity) (bool, error) {
	return db.acknowledged(ctx, db.DB, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) acknowledged(ctx context.Context, q queryRower, id Identity) (bool, error) {
	query := `
		SELECT alert_acknowledged
		FROM energy_data
		WHERE pod_code = ? AND obis_code = ? AND date = ?
	`

	var acknowledged bool
	err := q.QueryRowContext(ctx, db.rebind(query), id.PodCode, id.OBISCode, id.Date).Scan(&acknowledged)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read acknowledgement for %s: %w", id, err)
	}
	return acknowledged, nil
}

// Fetch returns observations matching the filter, newest date first, then
// by installation name
func (db *DB) Fetch(ctx context.Context, f Filter) ([]*Observation, error) {
	w := f.where()
	query := "SELECT " + observationColumns + " FROM energy_data" + w.String() +
		" ORDER BY date DESC, pod_name ASC, obis_code ASC"

	rows, err := db.QueryContext(ctx, db.rebind(query), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []*Observation
	for rows.Next() {
		var o Observation
		var podName, description, unit sql.NullString
		if err := rows.Scan(
			&o.ID,
			&o.PodCode,
			&podName,
			&o.OBISCode,
			&description,
			&o.Date,
			&unit,
			&o.ValueKWh,
			&o.KWhPrice,
			&o.Earnings,
			&o.StartedAt,
			&o.EndedAt,
			&o.Calculated,
			&o.PeakPowerKW,
			&o.SunHours,
			&o.IrradianceKWhM2,
			&o.ExpectedKWh,
			&o.PerformanceRatio,
			&o.IsUnderperforming,
			&o.AlertSent,
			&o.AlertAcknowledged,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.PodName = podName.String
		o.OBISDescription = description.String
		o.Unit = unit.String
		observations = append(observations, &o)
	}

	return observations, rows.Err()
}

// identityChunk bounds the OR terms per statement; SQLite rejects
// expression trees deeper than 1000.
const identityChunk = 250

// UpdateFlags applies a lifecycle flag update to every observation in scope
// and returns the number of rows changed. Large identity lists are split
// across statements that commit together.
func (db *DB) UpdateFlags(ctx context.Context, scope Scope, update FlagUpdate) (int64, error) {
	if update.empty() {
		return 0, nil
	}
	if scope.Identities != nil && len(scope.Identities) == 0 {
		return 0, nil
	}

	set := &where{}
	if update.Sent != nil {
		set.add("alert_sent = ?", *update.Sent)
	}
	if update.Acknowledged != nil {
		set.add("alert_acknowledged = ?", *update.Acknowledged)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, part := range scope.chunks(identityChunk) {
		w := part.where()
		query := "UPDATE energy_data SET " + strings.Join(set.conds, ", ") + w.String()
		args := append(append([]any{}, set.args...), w.args...)

		result, err := tx.ExecContext(ctx, db.rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to update alert flags: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count updated rows: %w", err)
		}
		total += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit flag update: %w", err)
	}
	return total, nil
}

// CountByState counts underperforming observations per lifecycle state.
// Each count is computed independently.
func (db *DB) CountByState(ctx context.Context) (*Counts, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN alert_sent = FALSE AND alert_acknowledged = FALSE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN alert_sent = TRUE AND alert_acknowledged = FALSE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN alert_acknowledged = TRUE THEN 1 ELSE 0 END), 0)
		FROM energy_data
		WHERE is_underperforming = TRUE
	`

	var c Counts
	if err := db.QueryRowContext(ctx, query).Scan(&c.Total, &c.Pending, &c.Sent, &c.Acknowledged); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	return &c, nil
}
