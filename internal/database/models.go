package database

import (
	"fmt"
	"time"
)

// DateLayout is the storage format of Observation.Date
const DateLayout = "2006-01-02"

// Identity uniquely identifies one installation-day-metric observation
type Identity struct {
	PodCode  string `json:"pod_code"`
	OBISCode string `json:"obis_code"`
	Date     string `json:"date"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%s@%s", i.PodCode, i.OBISCode, i.Date)
}

// Observation is one collected installation-day for one metric code,
// together with its performance inputs and alert lifecycle flags
type Observation struct {
	ID              int64  `json:"id"`
	PodCode         string `json:"pod_code"`
	PodName         string `json:"pod_name"`
	OBISCode        string `json:"obis_code"`
	OBISDescription string `json:"obis_description"`
	Date            string `json:"date"`
	Unit            string `json:"unit"`

	ValueKWh   float64    `json:"value_kwh"`
	KWhPrice   float64    `json:"kwh_price"`
	Earnings   float64    `json:"earnings"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Calculated bool       `json:"calculated"`

	// Performance inputs, nil when capacity or weather was unavailable
	PeakPowerKW      *float64 `json:"peak_power_kw"`
	SunHours         *float64 `json:"sun_hours"`
	IrradianceKWhM2  *float64 `json:"solar_irradiance_kwh_m2"`
	ExpectedKWh      *float64 `json:"expected_kwh"`
	PerformanceRatio *float64 `json:"performance_ratio"`

	IsUnderperforming bool `json:"is_underperforming"`
	AlertSent         bool `json:"alert_sent"`
	AlertAcknowledged bool `json:"alert_acknowledged"`

	CreatedAt time.Time `json:"created_at"`
}

// Identity returns the unique key of the observation
func (o *Observation) Identity() Identity {
	return Identity{PodCode: o.PodCode, OBISCode: o.OBISCode, Date: o.Date}
}

// Counts holds lifecycle counts over underperforming observations
type Counts struct {
	Total        int64 `json:"total_alerts"`
	Pending      int64 `json:"pending"`
	Sent         int64 `json:"sent"`
	Acknowledged int64 `json:"acknowledged"`
}

// Status selects observations by alert lifecycle state
type Status string

const (
	StatusAll          Status = "all"
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
)

// ParseDate validates a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseStatus parses a lifecycle status filter, empty meaning all
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "":
		return StatusAll, nil
	case StatusAll, StatusPending, StatusSent, StatusAcknowledged:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q (expected all, pending, sent or acknowledged)", ErrInvalidStatus, s)
	}
}
