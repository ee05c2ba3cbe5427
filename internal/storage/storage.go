package storage

import (
	"context"
	"time"

	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/models"
)

// Storage is the persistence collaborator. Implementations return
// (nil, nil) for lookups that find nothing.
type Storage interface {
	// Endpoints
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]models.Endpoint, error)
	ListActiveEndpoints(ctx context.Context) ([]models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	// RecordEndpointDispatch folds one dispatch outcome into the
	// endpoint's persisted stats as a single atomic increment. Endpoint
	// stats are shared between scheduled dispatches, test sends, and
	// health probes, so callers must never load-modify-store them.
	RecordEndpointDispatch(ctx context.Context, id string, o dispatch.Outcome, at time.Time) error
	DeleteEndpoint(ctx context.Context, id string) error
	ToggleEndpoint(ctx context.Context, id string, active bool) error

	// Schedules
	CreateSchedule(ctx context.Context, sch *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, limit, offset int) ([]models.Schedule, error)
	ListSchedulesByEndpoint(ctx context.Context, endpointID string) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, sch *models.Schedule) error
	// UpdateScheduleAfterRun persists the post-dispatch state: advanced
	// due time, active flag, and stats.
	UpdateScheduleAfterRun(ctx context.Context, sch *models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ToggleSchedule(ctx context.Context, id string, active bool) error
	// GetDueSchedules returns active schedules with due_at <= now.
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]models.Schedule, error)

	// Overview
	GetOverview(ctx context.Context) (*Overview, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Overview struct {
	TotalEndpoints  int64   `json:"total_endpoints"`
	ActiveEndpoints int64   `json:"active_endpoints"`
	TotalSchedules  int64   `json:"total_schedules"`
	ActiveSchedules int64   `json:"active_schedules"`
	TotalDispatches int64   `json:"total_dispatches"`
	SuccessCount    int64   `json:"success_count"`
	FailureCount    int64   `json:"failure_count"`
	SuccessRate     float64 `json:"success_rate"`
}
