package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hookbeat/hookbeat/internal/config"
	"github.com/hookbeat/hookbeat/internal/engine"
	"github.com/hookbeat/hookbeat/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	store  storage.Storage
	engine *engine.Engine
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, eng *engine.Engine, log zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		engine: eng,
		log:    log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	epHandler := NewEndpointHandler(s.store, s.engine)
	schHandler := NewScheduleHandler(s.store, s.engine)
	statsHandler := NewStatsHandler(s.store, s.engine)

	// Liveness probe for the service itself
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Endpoints
		r.Post("/endpoints", epHandler.Create)
		r.Get("/endpoints", epHandler.List)
		r.Get("/endpoints/{id}", epHandler.Get)
		r.Put("/endpoints/{id}", epHandler.Update)
		r.Delete("/endpoints/{id}", epHandler.Delete)
		r.Patch("/endpoints/{id}/toggle", epHandler.Toggle)
		r.Get("/endpoints/{id}/stats", epHandler.Stats)
		r.Post("/endpoints/{id}/test", epHandler.Test)

		// Schedules
		r.Post("/schedules", schHandler.Create)
		r.Get("/schedules", schHandler.List)
		r.Get("/schedules/{id}", schHandler.Get)
		r.Put("/schedules/{id}", schHandler.Update)
		r.Delete("/schedules/{id}", schHandler.Delete)
		r.Patch("/schedules/{id}/toggle", schHandler.Toggle)
		r.Post("/schedules/{id}/run", schHandler.Run)

		// Stats & analytics
		r.Get("/stats", statsHandler.Overview)
		r.Get("/analytics/events", statsHandler.RecentEvents)
	})

	return r
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
