package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbeat/hookbeat/internal/config"
	"github.com/hookbeat/hookbeat/internal/engine"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/storage"
)

func newTestAPI(t *testing.T) (http.Handler, storage.Storage) {
	t.Helper()

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "hookbeat.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Dispatch:  config.DispatchConfig{Timeout: 2 * time.Second},
		RateLimit: config.RateLimitConfig{Limit: 60, Window: time.Minute},
		Analytics: config.AnalyticsConfig{Enabled: true, Retention: 100},
	}
	eng := engine.New(cfg, store, zerolog.Nop())

	srv := NewServer(config.ServerConfig{}, store, eng, zerolog.Nop())
	return srv.Router(), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedEndpoint(t *testing.T, store storage.Storage, url string, rateLimit int) *models.Endpoint {
	t.Helper()

	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:        models.NewID("ep"),
		Name:      "test target",
		URL:       url,
		Secret:    models.NewSecret(),
		RateLimit: rateLimit,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateEndpoint(context.Background(), ep))
	return ep
}

func TestHealthRoute(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCreateEndpointValidation(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints", map[string]string{"url": "https://example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: name is required")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/endpoints", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: url is required")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/endpoints", map[string]string{"name": "x", "url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: url must be a valid HTTP or HTTPS URL")
}

func TestEndpointLifecycle(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints", map[string]interface{}{
		"name": "alerts", "url": "https://example.com/hook",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Secret)
	assert.True(t, created.Active)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/endpoints", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/endpoints/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled models.Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndpointTestSend(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, target.URL, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestEndpointTestSendFailureIsBadGateway(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer target.Close()

	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, target.URL, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestEndpointTestSendRateLimited(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, target.URL, 1)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestEndpointTestSendNotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints/ep_missing/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndpointTestSendRejectsInvalidPayload(t *testing.T) {
	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, "https://example.com/hook", 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: payload must be valid JSON")
}

func TestCreateScheduleValidation(t *testing.T) {
	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, "https://example.com/hook", 0)
	dueAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	// Missing endpoint_id.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"payload": map[string]string{"text": "hi"}, "due_at": dueAt,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: endpoint_id is required")

	// Unknown endpoint.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"endpoint_id": "ep_nope", "payload": map[string]string{"text": "hi"}, "due_at": dueAt,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad recurrence.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"endpoint_id": ep.ID, "payload": map[string]string{"text": "hi"}, "due_at": dueAt,
		"recurrence": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation: recurrence must be one of")
}

func TestScheduleLifecycle(t *testing.T) {
	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, "https://example.com/hook", 0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"endpoint_id": ep.ID,
		"payload":     map[string]string{"text": "hi"},
		"due_at":      time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"recurrence":  "daily",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.RecurrenceDaily, created.Recurrence)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/schedules?endpoint_id="+ep.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []models.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	newDue := time.Now().Add(2 * time.Hour).UTC()
	rec = doJSON(t, router, http.MethodPut, "/api/v1/schedules/"+created.ID, map[string]interface{}{
		"due_at": newDue.Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/schedules/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled models.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunScheduleNow(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, target.URL, 0)

	now := time.Now().UTC()
	sch := &models.Schedule{
		ID:         models.NewID("sch"),
		EndpointID: ep.ID,
		Payload:    json.RawMessage(`{"text":"go"}`),
		DueAt:      now.Add(time.Hour),
		Recurrence: models.RecurrenceOnce,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.CreateSchedule(context.Background(), sch))

	rec := doJSON(t, router, http.MethodPost, "/api/v1/schedules/"+sch.ID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	// A once schedule is terminal after its run.
	got, err := store.GetSchedule(context.Background(), sch.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, int64(1), got.Stats.SuccessCount)
}

func TestRunScheduleNotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/schedules/sch_missing/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverviewAndAnalytics(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	router, store := newTestAPI(t)
	ep := seedEndpoint(t, store, target.URL, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/endpoints/"+ep.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ov storage.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, int64(1), ov.TotalEndpoints)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/analytics/events?limit=%d", 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint.tested")
}
