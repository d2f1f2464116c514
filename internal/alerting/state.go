// Package alerting manages the pending, sent and acknowledged lifecycle of
// underperformance alerts and answers queries over them.
package alerting

import "github.com/smukkama/solar-watch/internal/database"

// State is the lifecycle state of an alert
type State string

const (
	StatePending      State = "pending"
	StateSent         State = "sent"
	StateAcknowledged State = "acknowledged"
)

// StateOf derives the lifecycle state from the stored flags.
// Acknowledgement dominates.
func StateOf(o *database.Observation) State {
	switch {
	case o.AlertAcknowledged:
		return StateAcknowledged
	case o.AlertSent:
		return StateSent
	default:
		return StatePending
	}
}
