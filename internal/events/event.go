// Package events publishes alert lifecycle transitions to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/solar-watch/internal/database"
)

// Type names a lifecycle transition
type Type string

const (
	TypeCollected    Type = "COLLECTED"
	TypeSent         Type = "ALERTS_SENT"
	TypeAcknowledged Type = "ALERTS_ACKNOWLEDGED"
	TypeReset        Type = "ALERTS_RESET"
)

// Event is the message format for lifecycle notifications
type Event struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	PodCode    string              `json:"pod_code,omitempty"`
	Date       string              `json:"date,omitempty"`
	Affected   int64               `json:"affected_records"`
	Identities []database.Identity `json:"identities,omitempty"`
	Message    string              `json:"message,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// New creates an event with a fresh ID stamped now
func New(t Type, podCode, date string, affected int64) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		PodCode:    podCode,
		Date:       date,
		Affected:   affected,
		OccurredAt: time.Now().UTC(),
	}
}

// Key partitions events by installation; unscoped events share one key
func (e *Event) Key() string {
	if e.PodCode == "" {
		return "all"
	}
	return e.PodCode
}

// Encode serializes the event
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Decode parses an event produced by Encode
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}
