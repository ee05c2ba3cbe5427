// Package health periodically probes every active endpoint, independently
// of scheduling, so stale or broken targets surface before their next
// scheduled send.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookbeat/hookbeat/internal/analytics"
	"github.com/hookbeat/hookbeat/internal/config"
	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/ratelimit"
	"github.com/hookbeat/hookbeat/internal/storage"
)

const DefaultInterval = 5 * time.Minute

var pingPayload = []byte(`{"type":"ping"}`)

type Checker struct {
	store    storage.Storage
	sender   *dispatch.Sender
	limiter  *ratelimit.Limiter
	queue    *analytics.Queue
	log      zerolog.Logger
	interval time.Duration
	rate     config.RateLimitConfig

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewChecker(interval time.Duration, rate config.RateLimitConfig, store storage.Storage,
	sender *dispatch.Sender, limiter *ratelimit.Limiter, queue *analytics.Queue, log zerolog.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		store:    store,
		sender:   sender,
		limiter:  limiter,
		queue:    queue,
		log:      log,
		interval: interval,
		rate:     rate,
		stop:     make(chan struct{}),
	}
}

func (c *Checker) Start(ctx context.Context) {
	c.log.Info().Dur("interval", c.interval).Msg("starting endpoint health checker")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Run(ctx)
			}
		}
	}()
}

func (c *Checker) Stop() {
	close(c.stop)
	c.wg.Wait()
	c.log.Info().Msg("endpoint health checker stopped")
}

// Run probes every active endpoint once. Probes count against the same
// per-endpoint rate budget as every other caller; a throttled endpoint is
// skipped rather than probed over its limit.
func (c *Checker) Run(ctx context.Context) {
	endpoints, err := c.store.ListActiveEndpoints(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list endpoints for health check")
		return
	}

	for _, ep := range endpoints {
		ep := ep
		// Same limit fallback and window as interactive sends; probes
		// draw from the one per-endpoint budget.
		limit := ep.RateLimit
		if limit <= 0 {
			limit = c.rate.Limit
		}
		if !c.limiter.Allow(ep.ID, limit, c.rate.Window) {
			c.log.Debug().Str("endpoint_id", ep.ID).Msg("health probe skipped, rate limited")
			continue
		}

		out := c.sender.Send(ctx, &ep, pingPayload)
		if err := c.store.RecordEndpointDispatch(ctx, ep.ID, out, time.Now()); err != nil {
			c.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to persist endpoint stats after probe")
		}

		if out.Success {
			c.queue.Track("endpoint.healthy", map[string]interface{}{
				"endpoint_id": ep.ID, "latency_ms": out.LatencyMs,
			})
		} else {
			c.queue.Track("endpoint.unhealthy", map[string]interface{}{
				"endpoint_id": ep.ID, "reason": out.Reason(), "status_code": out.StatusCode,
			})
			c.log.Warn().
				Str("endpoint_id", ep.ID).
				Str("reason", out.Reason()).
				Msg("endpoint failed health probe")
		}
	}
}
