package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hookbeat/hookbeat/internal/models"
)

func TestNextDue(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		prev       time.Time
		recurrence models.Recurrence
		want       time.Time
		wantAgain  bool
	}{
		{"daily", base, models.RecurrenceDaily, base.Add(24 * time.Hour), true},
		{"weekly", base, models.RecurrenceWeekly, base.Add(7 * 24 * time.Hour), true},
		{"monthly", base, models.RecurrenceMonthly, time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC), true},
		{"once", base, models.RecurrenceOnce, base, false},
		{"unrecognized treated as once", base, models.Recurrence("hourly"), base, false},
		{
			"monthly clamps jan 31 to feb 28",
			time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC),
			models.RecurrenceMonthly,
			time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC),
			true,
		},
		{
			"monthly clamps to feb 29 in leap years",
			time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC),
			models.RecurrenceMonthly,
			time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC),
			true,
		},
		{
			"monthly across year end",
			time.Date(2025, 12, 15, 23, 0, 0, 0, time.UTC),
			models.RecurrenceMonthly,
			time.Date(2026, 1, 15, 23, 0, 0, 0, time.UTC),
			true,
		},
		{
			"monthly clamps oct 31 to nov 30",
			time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC),
			models.RecurrenceMonthly,
			time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, again := NextDue(tt.prev, tt.recurrence)
			assert.Equal(t, tt.wantAgain, again)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNextDueAdvanceIsDriftFree(t *testing.T) {
	// Advancing from the previous due time must be independent of how
	// late the tick fired: T -> T+24h, full stop.
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	got, again := NextDue(due, models.RecurrenceDaily)
	assert.True(t, again)
	assert.Equal(t, due.Add(24*time.Hour), got)
}
