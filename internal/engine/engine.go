// Package engine wires the dispatch core together: one object owns the
// scheduler tick, the analytics flush timer, and the health-check timer,
// with every dependency injected at construction. There is no package
// state; two engines in one process would be two independent engines.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookbeat/hookbeat/internal/analytics"
	"github.com/hookbeat/hookbeat/internal/config"
	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/errs"
	"github.com/hookbeat/hookbeat/internal/health"
	"github.com/hookbeat/hookbeat/internal/notify"
	"github.com/hookbeat/hookbeat/internal/ratelimit"
	"github.com/hookbeat/hookbeat/internal/scheduler"
	"github.com/hookbeat/hookbeat/internal/stats"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type Engine struct {
	store    storage.Storage
	sender   *dispatch.Sender
	limiter  *ratelimit.Limiter
	queue    *analytics.Queue
	notifier notify.Notifier
	loop     *scheduler.Loop
	checker  *health.Checker
	log      zerolog.Logger

	rateWindow config.RateLimitConfig
}

func New(cfg *config.Config, store storage.Storage, log zerolog.Logger) *Engine {
	sender := dispatch.NewSender(cfg.Dispatch.Timeout)
	limiter := ratelimit.New()
	agg := stats.NewAggregator()
	notifier := notify.NewLogNotifier(log)

	var sink analytics.Sink
	if cfg.Analytics.SinkURL != "" {
		sink = analytics.NewHTTPSink(cfg.Analytics.SinkURL, cfg.Dispatch.Timeout)
	}
	queue := analytics.NewQueue(analytics.Config{
		Enabled:       cfg.Analytics.Enabled,
		FlushInterval: cfg.Analytics.FlushInterval,
		Retention:     cfg.Analytics.Retention,
	}, sink, log)

	loop := scheduler.NewLoop(scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		MaxPerTick:   cfg.Scheduler.MaxPerTick,
	}, store, sender, agg, queue, notifier, log)

	var checker *health.Checker
	if cfg.Health.Enabled {
		checker = health.NewChecker(cfg.Health.Interval, cfg.RateLimit, store, sender, limiter, queue, log)
	}

	return &Engine{
		store:      store,
		sender:     sender,
		limiter:    limiter,
		queue:      queue,
		notifier:   notifier,
		loop:       loop,
		checker:    checker,
		log:        log,
		rateWindow: cfg.RateLimit,
	}
}

// Start spins the three independent timers. Each runs until Stop or ctx
// cancellation.
func (e *Engine) Start(ctx context.Context) {
	e.loop.Start(ctx)
	e.queue.Start(ctx)
	if e.checker != nil {
		e.checker.Start(ctx)
	}
}

// Stop halts the timers, waits out in-flight dispatches, and flushes the
// analytics buffer one last time.
func (e *Engine) Stop() {
	e.loop.Stop()
	if e.checker != nil {
		e.checker.Stop()
	}
	e.queue.Stop()
}

// TestSend performs an interactive send against an endpoint. Unlike
// scheduled dispatches, every failure here is surfaced to the caller as a
// typed error; the outcome itself still reports the dispatch result.
func (e *Engine) TestSend(ctx context.Context, endpointID string, payload []byte) (dispatch.Outcome, error) {
	ep, err := e.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return dispatch.Outcome{}, &errs.PersistenceError{Op: "get endpoint", Err: err}
	}
	if ep == nil {
		return dispatch.Outcome{}, &errs.NotFoundError{Kind: "endpoint", ID: endpointID}
	}

	limit := ep.RateLimit
	if limit <= 0 {
		limit = e.rateWindow.Limit
	}
	if !e.limiter.Allow(ep.ID, limit, e.rateWindow.Window) {
		return dispatch.Outcome{}, &errs.RateLimitError{
			Identifier: ep.ID,
			RetryAfter: e.limiter.RetryAfter(ep.ID, limit, e.rateWindow.Window),
		}
	}

	out := e.sender.Send(ctx, ep, payload)

	e.queue.Track("endpoint.tested", map[string]interface{}{
		"endpoint_id": ep.ID,
		"success":     out.Success,
		"latency_ms":  out.LatencyMs,
	})
	e.notifier.Emit("endpoint.tested", map[string]interface{}{
		"endpoint_id": ep.ID, "success": out.Success,
	})

	// The stats write is part of the user-initiated operation; its
	// failure is the operation's failure. The fold is atomic in storage
	// because another send or probe may be recording concurrently.
	if err := e.store.RecordEndpointDispatch(ctx, ep.ID, out, time.Now()); err != nil {
		return out, &errs.PersistenceError{Op: "record endpoint dispatch", Err: err}
	}

	return out, nil
}

// RunSchedule triggers one schedule immediately through the scheduler's
// own execution path.
func (e *Engine) RunSchedule(ctx context.Context, id string) (dispatch.Outcome, error) {
	return e.loop.RunNow(ctx, id)
}

// Remaining reports the endpoint's unused rate budget in the default window.
func (e *Engine) Remaining(endpointID string, limit int) int {
	if limit <= 0 {
		limit = e.rateWindow.Limit
	}
	return e.limiter.Remaining(endpointID, limit)
}

// Analytics exposes the event queue to the API layer.
func (e *Engine) Analytics() *analytics.Queue {
	return e.queue
}
