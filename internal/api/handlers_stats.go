package api

import (
	"net/http"
	"strconv"

	"github.com/hookbeat/hookbeat/internal/engine"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type StatsHandler struct {
	store  storage.Storage
	engine *engine.Engine
}

func NewStatsHandler(store storage.Storage, eng *engine.Engine) *StatsHandler {
	return &StatsHandler{store: store, engine: eng}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "hookbeat",
	})
}

func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.store.GetOverview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// RecentEvents returns the bounded local mirror of tracked analytics
// events, newest last.
func (h *StatsHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events := h.engine.Analytics().Recent(limit)
	writeJSON(w, http.StatusOK, events)
}
