// Package stats maintains rolling dispatch counters without retaining
// per-attempt history.
package stats

import (
	"sync"
	"time"

	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/models"
)

// Aggregator serializes updates to Stats values that can be touched by a
// scheduled execution and an interactive test at the same time.
type Aggregator struct {
	mu  sync.Mutex
	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// RecordedLatency is the latency an outcome contributes to rolling
// averages. Failed attempts contribute zero, pulling the average down.
func RecordedLatency(o dispatch.Outcome) int64 {
	if !o.Success {
		return 0
	}
	return o.LatencyMs
}

// Record folds one outcome into s. Every attempt is counted exactly once;
// the average uses the incremental mean avg += (latency-avg)/total.
func (a *Aggregator) Record(s *models.Stats, o dispatch.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s.TotalCount++
	if o.Success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}

	now := a.now().UTC()
	s.LastExecutedAt = &now

	s.AvgResponseTimeMs += (float64(RecordedLatency(o)) - s.AvgResponseTimeMs) / float64(s.TotalCount)
}
