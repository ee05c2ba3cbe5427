package scheduler

import (
	"time"

	"github.com/hookbeat/hookbeat/internal/models"
)

// NextDue computes the due time following prev. The advance is measured
// from the previous due time, never from the wall clock, so dispatch
// latency does not accumulate drift. The second return is false when the
// schedule is finished: once, or an unrecognized recurrence value.
func NextDue(prev time.Time, r models.Recurrence) (time.Time, bool) {
	switch r {
	case models.RecurrenceDaily:
		return prev.Add(24 * time.Hour), true
	case models.RecurrenceWeekly:
		return prev.Add(7 * 24 * time.Hour), true
	case models.RecurrenceMonthly:
		return addMonthClamped(prev), true
	default:
		return prev, false
	}
}

// addMonthClamped advances one calendar month, clamping the day to the
// target month's length: Jan 31 -> Feb 28 (29 in leap years), never a
// rollover into March.
func addMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// Day 0 of the month after next normalizes to the last day of the
	// target month.
	lastDay := time.Date(y, m+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(y, m+1, d, hh, mm, ss, t.Nanosecond(), t.Location())
}
