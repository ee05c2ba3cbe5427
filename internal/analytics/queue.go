// Package analytics buffers named events and delivers them to a collector
// in timed batches, re-queueing failed batches instead of dropping them.
package analytics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookbeat/hookbeat/internal/models"
)

const (
	DefaultFlushInterval = 30 * time.Second
	DefaultRetention     = 1000
)

// Priority event names flush immediately instead of waiting for the timer.
var priorityNames = map[string]bool{
	"schedule.failed":    true,
	"endpoint.unhealthy": true,
}

type Config struct {
	Enabled       bool
	FlushInterval time.Duration
	Retention     int
	// MaxBuffer bounds the live buffer including re-queued failed
	// batches. 0 means 10x retention.
	MaxBuffer int
}

type Queue struct {
	mu      sync.Mutex
	buf     []models.AnalyticsEvent
	recent  []models.AnalyticsEvent
	enabled bool

	sink      Sink
	retention int
	maxBuffer int
	interval  time.Duration
	log       zerolog.Logger
	now       func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewQueue(cfg Config, sink Sink, log zerolog.Logger) *Queue {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = cfg.Retention * 10
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Queue{
		enabled:   cfg.Enabled,
		sink:      sink,
		retention: cfg.Retention,
		maxBuffer: cfg.MaxBuffer,
		interval:  cfg.FlushInterval,
		log:       log,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// SetEnabled toggles the consent flag. When disabled, Track is a no-op;
// already-buffered events still flush.
func (q *Queue) SetEnabled(enabled bool) {
	q.mu.Lock()
	q.enabled = enabled
	q.mu.Unlock()
}

// Track appends an event to the buffer. Priority events trigger an
// immediate asynchronous flush.
func (q *Queue) Track(name string, properties map[string]interface{}) {
	q.mu.Lock()
	if !q.enabled {
		q.mu.Unlock()
		return
	}

	ev := models.AnalyticsEvent{
		Name:       name,
		Properties: properties,
		Timestamp:  q.now().UTC(),
	}
	q.buf = append(q.buf, ev)
	q.trimLocked()

	q.recent = append(q.recent, ev)
	if len(q.recent) > q.retention {
		q.recent = q.recent[len(q.recent)-q.retention:]
	}
	q.mu.Unlock()

	if isPriority(name) {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			if err := q.Flush(context.Background()); err != nil {
				q.log.Warn().Err(err).Str("event", name).Msg("priority flush failed")
			}
		}()
	}
}

// Flush swaps out the buffer and delivers it. On failure the batch is
// prepended back, in order, ahead of anything tracked meanwhile.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	batch := q.buf
	q.buf = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := q.sink.Deliver(ctx, batch); err != nil {
		q.mu.Lock()
		q.buf = append(batch, q.buf...)
		q.trimLocked()
		q.mu.Unlock()
		return err
	}
	return nil
}

// Recent returns up to n of the most recently tracked events, newest last.
func (q *Queue) Recent(n int) []models.AnalyticsEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > len(q.recent) {
		n = len(q.recent)
	}
	out := make([]models.AnalyticsEvent, n)
	copy(out, q.recent[len(q.recent)-n:])
	return out
}

// Pending reports how many events await delivery.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Start runs the flush timer until ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-q.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Flush(ctx); err != nil {
					q.log.Warn().Err(err).Int("pending", q.Pending()).Msg("analytics flush failed, batch re-queued")
				}
			}
		}
	}()
}

// Stop halts the timer and attempts one final flush.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
	if err := q.Flush(context.Background()); err != nil {
		q.log.Warn().Err(err).Msg("final analytics flush failed")
	}
}

// trimLocked drops the oldest events beyond the buffer cap. Caller holds
// the lock.
func (q *Queue) trimLocked() {
	if len(q.buf) > q.maxBuffer {
		dropped := len(q.buf) - q.maxBuffer
		q.buf = q.buf[dropped:]
		q.log.Warn().Int("dropped", dropped).Msg("analytics buffer over cap, oldest events dropped")
	}
}

func isPriority(name string) bool {
	return priorityNames[name] || strings.HasPrefix(name, "error.")
}
