package store

import "time"

// Stats is a point-in-time summary of the stored history for the control
// surface. Subscriptions is filled in by the router, not the store.
type Stats struct {
	Total         int            `json:"total"`
	Today         int            `json:"today"`
	Yesterday     int            `json:"yesterday"`
	ThisWeek      int            `json:"thisWeek"`
	ByType        map[string]int `json:"byType"`
	ByStatus      map[string]int `json:"byStatus"`
	Subscriptions int            `json:"subscriptions"`
	Oldest        string         `json:"oldest,omitempty"`
	Newest        string         `json:"newest,omitempty"`
}

// Stats computes bucketed counts over the current snapshot. Buckets use the
// stored timestamps, calendar-aligned to UTC days.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	weekStart := today.AddDate(0, 0, -7)

	st := Stats{
		Total:    len(s.messages),
		ByType:   map[string]int{},
		ByStatus: map[string]int{},
	}

	if len(s.messages) > 0 {
		st.Newest = s.messages[0].Timestamp
		st.Oldest = s.messages[len(s.messages)-1].Timestamp
	}

	for _, m := range s.messages {
		st.ByType[m.Type]++
		st.ByStatus[m.Status]++

		ts, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if !ts.Before(today) {
			st.Today++
		}
		if !ts.Before(yesterday) && ts.Before(today) {
			st.Yesterday++
		}
		if !ts.Before(weekStart) {
			st.ThisWeek++
		}
	}

	return st
}
