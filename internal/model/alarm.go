package model

import "time"

// Alarm is a named, persisted schedule. A zero PeriodInMinutes makes it
// one-shot.
type Alarm struct {
	Name            string    `json:"name"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	PeriodInMinutes float64   `json:"period_in_minutes,omitempty"`
}
