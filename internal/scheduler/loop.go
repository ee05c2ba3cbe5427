// Package scheduler drives recurring sends: a fixed-interval tick scans
// for due schedules, dispatches them concurrently, and advances their
// recurrence. An engine-local in-flight guard gives at-most-once execution
// per tick even when a dispatch outruns the tick interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookbeat/hookbeat/internal/analytics"
	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/errs"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/notify"
	"github.com/hookbeat/hookbeat/internal/stats"
	"github.com/hookbeat/hookbeat/internal/storage"
)

const (
	DefaultTickInterval = 60 * time.Second
	DefaultMaxPerTick   = 100
)

// ErrInFlight is returned by RunNow when the schedule's previous dispatch
// has not completed yet.
var ErrInFlight = fmt.Errorf("schedule dispatch already in flight")

type Config struct {
	TickInterval time.Duration
	MaxPerTick   int
}

type Loop struct {
	store    storage.Storage
	sender   *dispatch.Sender
	agg      *stats.Aggregator
	queue    *analytics.Queue
	notifier notify.Notifier
	log      zerolog.Logger

	interval   time.Duration
	maxPerTick int
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewLoop(cfg Config, store storage.Storage, sender *dispatch.Sender, agg *stats.Aggregator,
	queue *analytics.Queue, notifier notify.Notifier, log zerolog.Logger) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxPerTick <= 0 {
		cfg.MaxPerTick = DefaultMaxPerTick
	}
	return &Loop{
		store:      store,
		sender:     sender,
		agg:        agg,
		queue:      queue,
		notifier:   notifier,
		log:        log,
		interval:   cfg.TickInterval,
		maxPerTick: cfg.MaxPerTick,
		now:        time.Now,
		inFlight:   make(map[string]bool),
		stop:       make(chan struct{}),
	}
}

func (l *Loop) Start(ctx context.Context) {
	l.log.Info().Dur("tick_interval", l.interval).Msg("starting scheduler loop")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Tick(ctx)
			}
		}
	}()
}

func (l *Loop) Stop() {
	close(l.stop)
	l.wg.Wait()
	l.log.Info().Msg("scheduler loop stopped")
}

// Tick scans for due schedules and dispatches them concurrently. One
// failing schedule never blocks or delays the others; the tick itself
// never returns an error.
func (l *Loop) Tick(ctx context.Context) {
	now := l.now().UTC()
	due, err := l.store.GetDueSchedules(ctx, now, l.maxPerTick)
	if err != nil {
		l.log.Error().Err(err).Msg("failed to fetch due schedules")
		return
	}

	sem := make(chan struct{}, l.maxPerTick)
	for _, sch := range due {
		sch := sch
		if !l.acquire(sch.ID) {
			// Previous dispatch still running; skip until it completes.
			continue
		}
		sem <- struct{}{}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() { <-sem }()
			l.runOne(ctx, sch)
		}()
	}
}

// RunNow executes a single schedule immediately through the same path as
// a scheduled tick, honoring the in-flight guard.
func (l *Loop) RunNow(ctx context.Context, id string) (dispatch.Outcome, error) {
	sch, err := l.store.GetSchedule(ctx, id)
	if err != nil {
		return dispatch.Outcome{}, &errs.PersistenceError{Op: "get schedule", Err: err}
	}
	if sch == nil {
		return dispatch.Outcome{}, &errs.NotFoundError{Kind: "schedule", ID: id}
	}
	if !l.acquire(id) {
		return dispatch.Outcome{}, ErrInFlight
	}
	return l.runOne(ctx, *sch), nil
}

// InFlight reports whether the schedule's dispatch is currently running.
func (l *Loop) InFlight(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[id]
}

func (l *Loop) acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[id] {
		return false
	}
	l.inFlight[id] = true
	return true
}

func (l *Loop) release(id string) {
	l.mu.Lock()
	delete(l.inFlight, id)
	l.mu.Unlock()
}

// runOne dispatches one schedule, records stats, advances the recurrence,
// and persists the result. All failures are recovered locally.
func (l *Loop) runOne(ctx context.Context, sch models.Schedule) dispatch.Outcome {
	defer l.release(sch.ID)

	var out dispatch.Outcome
	var ep *models.Endpoint

	resolved, err := l.store.GetEndpoint(ctx, sch.EndpointID)
	switch {
	case err != nil:
		out = dispatch.Outcome{Transport: fmt.Sprintf("endpoint lookup failed: %v", err)}
	case resolved == nil:
		// Orphaned schedule: the endpoint was deleted. Failure without
		// any network I/O; the recurrence still advances below.
		out = dispatch.Outcome{Transport: "endpoint missing"}
	case !resolved.Active:
		out = dispatch.Outcome{Transport: "endpoint inactive"}
	default:
		ep = resolved
		out = l.sender.Send(ctx, ep, sch.Payload)
	}

	l.agg.Record(&sch.Stats, out)

	if next, again := NextDue(sch.DueAt, sch.Recurrence); again {
		sch.DueAt = next
	} else {
		sch.Active = false
	}

	// Bookkeeping writes are non-fatal; the next mutation retries them.
	if err := l.store.UpdateScheduleAfterRun(ctx, &sch); err != nil {
		l.log.Error().Err(err).Str("schedule_id", sch.ID).Msg("failed to persist schedule after run")
		l.queue.Track("error.persistence", map[string]interface{}{
			"op": "update_schedule", "schedule_id": sch.ID,
		})
	}
	// Endpoint stats are shared with test sends and health probes, so
	// the fold happens atomically in storage rather than on this copy.
	if ep != nil {
		if err := l.store.RecordEndpointDispatch(ctx, ep.ID, out, l.now()); err != nil {
			l.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to persist endpoint stats")
		}
	}

	event := "schedule.dispatched"
	if !out.Success {
		event = "schedule.failed"
	}
	props := map[string]interface{}{
		"schedule_id": sch.ID,
		"endpoint_id": sch.EndpointID,
		"success":     out.Success,
		"latency_ms":  out.LatencyMs,
	}
	if reason := out.Reason(); reason != "" {
		props["reason"] = reason
	}
	if out.StatusCode != 0 {
		props["status_code"] = out.StatusCode
	}
	l.queue.Track(event, props)
	l.notifier.Emit(event, props)

	if out.Success {
		l.log.Info().
			Str("schedule_id", sch.ID).
			Str("endpoint_id", sch.EndpointID).
			Int64("latency_ms", out.LatencyMs).
			Msg("schedule dispatched")
	} else {
		l.log.Warn().
			Str("schedule_id", sch.ID).
			Str("endpoint_id", sch.EndpointID).
			Str("reason", out.Reason()).
			Str("detail", out.Transport).
			Int("status_code", out.StatusCode).
			Msg("schedule dispatch failed")
	}

	return out
}

// Wait blocks until all in-flight dispatches complete. Used by tests and
// shutdown.
func (l *Loop) Wait() {
	l.wg.Wait()
}
