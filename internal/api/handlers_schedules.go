package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookbeat/hookbeat/internal/engine"
	"github.com/hookbeat/hookbeat/internal/errs"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/scheduler"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type ScheduleHandler struct {
	store  storage.Storage
	engine *engine.Engine
}

func NewScheduleHandler(store storage.Storage, eng *engine.Engine) *ScheduleHandler {
	return &ScheduleHandler{store: store, engine: eng}
}

type createScheduleRequest struct {
	EndpointID string          `json:"endpoint_id"`
	Payload    json.RawMessage `json:"payload"`
	DueAt      time.Time       `json:"due_at"`
	Recurrence string          `json:"recurrence"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EndpointID == "" {
		writeTypedError(w, &errs.ValidationError{Field: "endpoint_id", Reason: "is required"})
		return
	}
	if len(req.Payload) == 0 {
		writeTypedError(w, &errs.ValidationError{Field: "payload", Reason: "is required"})
		return
	}
	if req.DueAt.IsZero() {
		writeTypedError(w, &errs.ValidationError{Field: "due_at", Reason: "is required"})
		return
	}
	recurrence := models.Recurrence(req.Recurrence)
	if req.Recurrence == "" {
		recurrence = models.RecurrenceOnce
	} else if !recurrence.Valid() {
		writeTypedError(w, &errs.ValidationError{Field: "recurrence", Reason: "must be one of: once, daily, weekly, monthly"})
		return
	}

	ep, err := h.store.GetEndpoint(r.Context(), req.EndpointID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	now := time.Now().UTC()
	sch := &models.Schedule{
		ID:         models.NewID("sch"),
		EndpointID: req.EndpointID,
		Payload:    req.Payload,
		DueAt:      req.DueAt.UTC(),
		Recurrence: recurrence,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateSchedule(r.Context(), sch); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, sch)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if sch == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if endpointID := r.URL.Query().Get("endpoint_id"); endpointID != "" {
		schedules, err := h.store.ListSchedulesByEndpoint(r.Context(), endpointID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list schedules")
			return
		}
		if schedules == nil {
			schedules = []models.Schedule{}
		}
		writeJSON(w, http.StatusOK, schedules)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	schedules, err := h.store.ListSchedules(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

type updateScheduleRequest struct {
	Payload    json.RawMessage `json:"payload"`
	DueAt      *time.Time      `json:"due_at"`
	Recurrence string          `json:"recurrence"`
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if sch == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Payload) > 0 {
		sch.Payload = req.Payload
	}
	if req.DueAt != nil {
		sch.DueAt = req.DueAt.UTC()
	}
	if req.Recurrence != "" {
		recurrence := models.Recurrence(req.Recurrence)
		if !recurrence.Valid() {
			writeTypedError(w, &errs.ValidationError{Field: "recurrence", Reason: "must be one of: once, daily, weekly, monthly"})
			return
		}
		sch.Recurrence = recurrence
	}

	if err := h.store.UpdateSchedule(r.Context(), sch); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	writeJSON(w, http.StatusOK, sch)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if sch == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	if err := h.store.DeleteSchedule(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}
	if sch == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	newActive := !sch.Active
	if err := h.store.ToggleSchedule(r.Context(), id, newActive); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle schedule")
		return
	}

	sch.Active = newActive
	writeJSON(w, http.StatusOK, sch)
}

// Run executes the schedule immediately, outside its normal due time.
func (h *ScheduleHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out, err := h.engine.RunSchedule(r.Context(), id)
	if err != nil {
		if err == scheduler.ErrInFlight {
			writeError(w, http.StatusConflict, "schedule dispatch already in flight")
			return
		}
		writeTypedError(w, err)
		return
	}

	status := http.StatusOK
	if !out.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, out)
}
