package alerting

import (
	"fmt"

	"github.com/smukkama/solar-watch/internal/database"
)

// Scope selects alerts by installation and/or date. The zero Scope means all
// alerts.
type Scope struct {
	PodCode string
	Date    string
}

// Validate rejects malformed dates
func (s Scope) Validate() error {
	if s.Date == "" {
		return nil
	}
	_, err := database.ParseDate(s.Date)
	return err
}

// describe renders the scope for outcome messages
func (s Scope) describe(verb string) string {
	switch {
	case s.PodCode != "" && s.Date != "":
		return fmt.Sprintf("%s alerts for POD %s on %s", verb, s.PodCode, s.Date)
	case s.PodCode != "":
		return fmt.Sprintf("%s all alerts for POD %s", verb, s.PodCode)
	case s.Date != "":
		return fmt.Sprintf("%s all alerts for date %s", verb, s.Date)
	default:
		return fmt.Sprintf("%s ALL alerts", verb)
	}
}
