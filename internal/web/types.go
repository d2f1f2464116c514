package web

import (
	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
)

// Alert is the JSON shape of one underperforming record
type Alert struct {
	Date              string   `json:"date"`
	PodCode           string   `json:"pod_code"`
	PodName           string   `json:"pod_name"`
	OBISCode          string   `json:"obis_code"`
	ValueKWh          float64  `json:"value_kwh"`
	ExpectedKWh       *float64 `json:"expected_kwh"`
	PerformanceRatio  *float64 `json:"performance_ratio"`
	AlertSent         bool     `json:"alert_sent"`
	AlertAcknowledged bool     `json:"alert_acknowledged"`
	Status            string   `json:"status"`
}

func toAlert(o *database.Observation) Alert {
	return Alert{
		Date:              o.Date,
		PodCode:           o.PodCode,
		PodName:           o.PodName,
		OBISCode:          o.OBISCode,
		ValueKWh:          o.ValueKWh,
		ExpectedKWh:       o.ExpectedKWh,
		PerformanceRatio:  o.PerformanceRatio,
		AlertSent:         o.AlertSent,
		AlertAcknowledged: o.AlertAcknowledged,
		Status:            string(alerting.StateOf(o)),
	}
}

// SummaryRow is one record of the recent-days report
type SummaryRow struct {
	Date              string   `json:"date"`
	PodCode           string   `json:"pod_code"`
	PodName           string   `json:"pod_name"`
	OBISCode          string   `json:"obis_code"`
	ValueKWh          float64  `json:"value_kwh"`
	Earnings          float64  `json:"earnings"`
	ExpectedKWh       *float64 `json:"expected_kwh"`
	PerformanceRatio  *float64 `json:"performance_ratio"`
	IsUnderperforming bool     `json:"is_underperforming"`
}

func toSummaryRow(o *database.Observation) SummaryRow {
	return SummaryRow{
		Date:              o.Date,
		PodCode:           o.PodCode,
		PodName:           o.PodName,
		OBISCode:          o.OBISCode,
		ValueKWh:          o.ValueKWh,
		Earnings:          o.Earnings,
		ExpectedKWh:       o.ExpectedKWh,
		PerformanceRatio:  o.PerformanceRatio,
		IsUnderperforming: o.IsUnderperforming,
	}
}

// ActionResponse answers acknowledge and reset requests
type ActionResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	AffectedRecords *int64 `json:"affected_records,omitempty"`
}

// HealthResponse answers /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}
