package models

import "time"

// AnalyticsEvent is a named occurrence with an arbitrary property bag.
type AnalyticsEvent struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}
