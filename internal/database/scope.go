package database

import "strings"

// Filter selects observations for listing and reporting
type Filter struct {
	Status              Status
	PodCode             string
	Date                string
	Since               string // inclusive lower bound on Date
	UnderperformingOnly bool
}

// Scope selects the observations a flag update applies to. An empty scope
// matches every observation.
type Scope struct {
	PodCode string
	Date    string

	// Identities restricts the update to exactly these observations when non-nil
	Identities []Identity

	UnderperformingOnly bool
	UnacknowledgedOnly  bool
}

// FlagUpdate sets the lifecycle flags that are non-nil
type FlagUpdate struct {
	Sent         *bool
	Acknowledged *bool
}

func (u FlagUpdate) empty() bool {
	return u.Sent == nil && u.Acknowledged == nil
}

// where accumulates AND-ed conditions with their ? arguments
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) status(st Status) {
	switch st {
	case StatusPending:
		w.add("alert_sent = FALSE AND alert_acknowledged = FALSE")
	case StatusSent:
		w.add("alert_sent = TRUE AND alert_acknowledged = FALSE")
	case StatusAcknowledged:
		w.add("alert_acknowledged = TRUE")
	}
}

func (f Filter) where() *where {
	w := &where{}
	if f.UnderperformingOnly {
		w.add("is_underperforming = TRUE")
	}
	w.status(f.Status)
	if f.PodCode != "" {
		w.add("pod_code = ?", f.PodCode)
	}
	if f.Date != "" {
		w.add("date = ?", f.Date)
	}
	if f.Since != "" {
		w.add("date >= ?", f.Since)
	}
	return w
}

// chunks splits an identity-restricted scope into scopes of at most size
// identities each. Other scopes are returned as is.
func (s Scope) chunks(size int) []Scope {
	if len(s.Identities) <= size {
		return []Scope{s}
	}
	parts := make([]Scope, 0, (len(s.Identities)+size-1)/size)
	for start := 0; start < len(s.Identities); start += size {
		end := start + size
		if end > len(s.Identities) {
			end = len(s.Identities)
		}
		part := s
		part.Identities = s.Identities[start:end]
		parts = append(parts, part)
	}
	return parts
}

func (s Scope) where() *where {
	w := &where{}
	if s.UnderperformingOnly {
		w.add("is_underperforming = TRUE")
	}
	if s.UnacknowledgedOnly {
		w.add("alert_acknowledged = FALSE")
	}
	if s.PodCode != "" {
		w.add("pod_code = ?", s.PodCode)
	}
	if s.Date != "" {
		w.add("date = ?", s.Date)
	}
	if s.Identities != nil && len(s.Identities) == 0 {
		w.add("1 = 0")
	} else if s.Identities != nil {
		ors := make([]string, 0, len(s.Identities))
		var args []any
		for _, id := range s.Identities {
			ors = append(ors, "(pod_code = ? AND obis_code = ? AND date = ?)")
			args = append(args, id.PodCode, id.OBISCode, id.Date)
		}
		w.add("("+strings.Join(ors, " OR ")+")", args...)
	}
	return w
}
