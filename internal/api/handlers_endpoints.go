package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookbeat/hookbeat/internal/engine"
	"github.com/hookbeat/hookbeat/internal/errs"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type EndpointHandler struct {
	store  storage.Storage
	engine *engine.Engine
}

func NewEndpointHandler(store storage.Storage, eng *engine.Engine) *EndpointHandler {
	return &EndpointHandler{store: store, engine: eng}
}

type createEndpointRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	RateLimit   int    `json:"rate_limit"`
}

func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeTypedError(w, &errs.ValidationError{Field: "name", Reason: "is required"})
		return
	}
	if req.URL == "" {
		writeTypedError(w, &errs.ValidationError{Field: "url", Reason: "is required"})
		return
	}
	if !validTargetURL(req.URL) {
		writeTypedError(w, &errs.ValidationError{Field: "url", Reason: "must be a valid HTTP or HTTPS URL"})
		return
	}

	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:          models.NewID("ep"),
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Secret:      models.NewSecret(),
		Username:    req.Username,
		AvatarURL:   req.AvatarURL,
		RateLimit:   req.RateLimit,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.store.ListEndpoints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	if eps == nil {
		eps = []models.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

type updateEndpointRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	RateLimit   int    `json:"rate_limit"`
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	var req updateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != "" {
		if !validTargetURL(req.URL) {
			writeTypedError(w, &errs.ValidationError{Field: "url", Reason: "must be a valid HTTP or HTTPS URL"})
			return
		}
		ep.URL = req.URL
	}
	if req.Name != "" {
		ep.Name = req.Name
	}
	ep.Description = req.Description
	ep.Username = req.Username
	ep.AvatarURL = req.AvatarURL
	ep.RateLimit = req.RateLimit

	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	// Schedules referencing this endpoint stay behind as orphans; the
	// scheduler records failures for them without network I/O.
	if err := h.store.DeleteEndpoint(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	newActive := !ep.Active
	if err := h.store.ToggleEndpoint(r.Context(), id, newActive); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle endpoint")
		return
	}

	ep.Active = newActive
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoint_id":        ep.ID,
		"stats":              ep.Stats,
		"remaining_requests": h.engine.Remaining(ep.ID, ep.RateLimit),
	})
}

const maxTestPayloadSize = 256 * 1024 // 256KB

// Test performs an interactive send against the endpoint, rate-limited
// like any other caller.
func (h *EndpointHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxTestPayloadSize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}
	if len(payload) == 0 {
		payload = []byte(`{"text":"hookbeat test message"}`)
	} else if !json.Valid(payload) {
		writeTypedError(w, &errs.ValidationError{Field: "payload", Reason: "must be valid JSON"})
		return
	}

	out, err := h.engine.TestSend(r.Context(), id, payload)
	if err != nil {
		writeTypedError(w, err)
		return
	}

	status := http.StatusOK
	if !out.Success {
		// The endpoint is reachable state-wise but the dispatch failed;
		// surface the classified outcome with a gateway status.
		status = http.StatusBadGateway
	}
	writeJSON(w, status, out)
}
