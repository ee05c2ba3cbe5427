package models

import (
	"encoding/json"
	"time"
)

type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Schedule is a recurring or one-shot send task bound to an endpoint.
// The in-flight guard for a running dispatch is engine-local state and
// is deliberately not part of the persisted model.
type Schedule struct {
	ID         string          `json:"id"`
	EndpointID string          `json:"endpoint_id"`
	Payload    json.RawMessage `json:"payload"`
	DueAt      time.Time       `json:"due_at"`
	Recurrence Recurrence      `json:"recurrence"`
	Active     bool            `json:"active"`
	Stats      Stats           `json:"stats"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
