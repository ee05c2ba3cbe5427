package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbeat/hookbeat/internal/analytics"
	"github.com/hookbeat/hookbeat/internal/config"
	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/ratelimit"
	"github.com/hookbeat/hookbeat/internal/stats"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type fakeStore struct {
	storage.Storage

	mu        sync.Mutex
	endpoints map[string]*models.Endpoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{endpoints: make(map[string]*models.Endpoint)}
}

func (f *fakeStore) ListActiveEndpoints(_ context.Context) ([]models.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Endpoint
	for _, ep := range f.endpoints {
		if ep.Active {
			out = append(out, *ep)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordEndpointDispatch(_ context.Context, id string, o dispatch.Outcome, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[id]
	if !ok {
		return nil
	}
	ep.Stats.TotalCount++
	if o.Success {
		ep.Stats.SuccessCount++
	} else {
		ep.Stats.FailureCount++
	}
	t := at
	ep.Stats.LastExecutedAt = &t
	ep.Stats.AvgResponseTimeMs += (float64(stats.RecordedLatency(o)) - ep.Stats.AvgResponseTimeMs) / float64(ep.Stats.TotalCount)
	return nil
}

func (f *fakeStore) endpoint(id string) models.Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.endpoints[id]
}

func newTestChecker(store storage.Storage, limiter *ratelimit.Limiter, rate config.RateLimitConfig) (*Checker, *analytics.Queue) {
	queue := analytics.NewQueue(analytics.Config{Enabled: true}, nil, zerolog.Nop())
	c := NewChecker(time.Hour, rate, store, dispatch.NewSender(2*time.Second), limiter, queue, zerolog.Nop())
	return c, queue
}

func eventNames(queue *analytics.Queue) []string {
	var names []string
	for _, ev := range queue.Recent(0) {
		names = append(names, ev.Name)
	}
	return names
}

func TestProbeRecordsHealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep_1"] = &models.Endpoint{ID: "ep_1", URL: srv.URL, Active: true}

	c, queue := newTestChecker(store, ratelimit.New(), config.RateLimitConfig{Limit: 60, Window: time.Minute})
	c.Run(context.Background())

	ep := store.endpoint("ep_1")
	assert.Equal(t, int64(1), ep.Stats.TotalCount)
	assert.Equal(t, int64(1), ep.Stats.SuccessCount)
	assert.Contains(t, eventNames(queue), "endpoint.healthy")
}

func TestProbeFlagsUnhealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep_1"] = &models.Endpoint{ID: "ep_1", URL: srv.URL, Active: true}

	c, queue := newTestChecker(store, ratelimit.New(), config.RateLimitConfig{Limit: 60, Window: time.Minute})
	c.Run(context.Background())

	ep := store.endpoint("ep_1")
	assert.Equal(t, int64(1), ep.Stats.TotalCount)
	assert.Equal(t, int64(1), ep.Stats.FailureCount)
	assert.Contains(t, eventNames(queue), "endpoint.unhealthy")
}

func TestProbeUsesConfiguredRateWindow(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.endpoints["ep_1"] = &models.Endpoint{ID: "ep_1", URL: srv.URL, Active: true}

	limiter := ratelimit.New()
	rate := config.RateLimitConfig{Limit: 1, Window: 50 * time.Millisecond}
	c, _ := newTestChecker(store, limiter, rate)

	// Another caller spends the whole budget, then the window expires;
	// the probe must admit itself under the configured window, not the
	// much longer package default.
	require.True(t, limiter.Allow("ep_1", rate.Limit, rate.Window))
	time.Sleep(150 * time.Millisecond)

	c.Run(context.Background())
	assert.Equal(t, int64(1), requests.Load())

	// The budget is spent again, so an immediate second pass skips.
	c.Run(context.Background())
	assert.Equal(t, int64(1), requests.Load())
}
