package models

import "time"

// Stats tracks dispatch counters for an endpoint or a schedule.
// AvgResponseTimeMs is an incremental mean over every recorded attempt;
// failed attempts contribute a latency of zero, so a failing target pulls
// the average toward zero rather than being excluded from it.
type Stats struct {
	TotalCount        int64      `json:"total_count"`
	SuccessCount      int64      `json:"success_count"`
	FailureCount      int64      `json:"failure_count"`
	LastExecutedAt    *time.Time `json:"last_executed_at,omitempty"`
	AvgResponseTimeMs float64    `json:"avg_response_time_ms"`
}
