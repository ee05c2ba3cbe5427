package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hookbeat/hookbeat/internal/dispatch"
	"github.com/hookbeat/hookbeat/internal/models"
	"github.com/hookbeat/hookbeat/internal/stats"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			secret TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			rate_limit INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			total_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_executed_at DATETIME,
			avg_response_ms REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// No foreign key from schedules to endpoints: deleting an endpoint
		// leaves its schedules orphaned, and the scheduler records a
		// failure for them instead of resurrecting the target.
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			due_at DATETIME NOT NULL,
			recurrence TEXT NOT NULL DEFAULT 'once',
			active INTEGER NOT NULL DEFAULT 1,
			total_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_executed_at DATETIME,
			avg_response_ms REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_endpoint ON schedules(endpoint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(active, due_at) WHERE active = 1`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Endpoints ---

const endpointColumns = `id, name, url, description, secret, username, avatar_url, rate_limit, active,
	total_count, success_count, failure_count, last_executed_at, avg_response_ms, created_at, updated_at`

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, name, url, description, secret, username, avatar_url, rate_limit, active,
			total_count, success_count, failure_count, last_executed_at, avg_response_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Name, ep.URL, ep.Description, ep.Secret, ep.Username, ep.AvatarURL, ep.RateLimit, boolToInt(ep.Active),
		ep.Stats.TotalCount, ep.Stats.SuccessCount, ep.Stats.FailureCount, ep.Stats.LastExecutedAt, ep.Stats.AvgResponseTimeMs,
		ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var active int
	var lastExecuted sql.NullTime
	err := row.Scan(&ep.ID, &ep.Name, &ep.URL, &ep.Description, &ep.Secret, &ep.Username, &ep.AvatarURL, &ep.RateLimit, &active,
		&ep.Stats.TotalCount, &ep.Stats.SuccessCount, &ep.Stats.FailureCount, &lastExecuted, &ep.Stats.AvgResponseTimeMs,
		&ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ep.Active = active == 1
	if lastExecuted.Valid {
		t := lastExecuted.Time
		ep.Stats.LastExecutedAt = &t
	}
	return &ep, nil
}

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	return s.listEndpoints(ctx, `SELECT `+endpointColumns+` FROM endpoints ORDER BY created_at DESC`)
}

func (s *SQLiteStorage) ListActiveEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	return s.listEndpoints(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE active = 1 ORDER BY created_at DESC`)
}

func (s *SQLiteStorage) listEndpoints(ctx context.Context, query string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET name = ?, url = ?, description = ?, username = ?, avatar_url = ?, rate_limit = ?, active = ?, updated_at = ? WHERE id = ?`,
		ep.Name, ep.URL, ep.Description, ep.Username, ep.AvatarURL, ep.RateLimit, boolToInt(ep.Active), time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStorage) RecordEndpointDispatch(ctx context.Context, id string, o dispatch.Outcome, at time.Time) error {
	succ, fail := 0, 0
	if o.Success {
		succ = 1
	} else {
		fail = 1
	}
	// Right-hand column references read the pre-update row, so the
	// counter increments and the incremental mean land in one atomic
	// statement and overlapping recorders never lose an attempt.
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET
			avg_response_ms = avg_response_ms + (? - avg_response_ms) / (total_count + 1),
			total_count = total_count + 1,
			success_count = success_count + ?,
			failure_count = failure_count + ?,
			last_executed_at = ?,
			updated_at = ?
		 WHERE id = ?`,
		float64(stats.RecordedLatency(o)), succ, fail, at.UTC(), time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ToggleEndpoint(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE endpoints SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC(), id)
	return err
}

// --- Schedules ---

const scheduleColumns = `id, endpoint_id, payload, due_at, recurrence, active,
	total_count, success_count, failure_count, last_executed_at, avg_response_ms, created_at, updated_at`

func (s *SQLiteStorage) CreateSchedule(ctx context.Context, sch *models.Schedule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, endpoint_id, payload, due_at, recurrence, active,
			total_count, success_count, failure_count, last_executed_at, avg_response_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.ID, sch.EndpointID, string(sch.Payload), sch.DueAt, string(sch.Recurrence), boolToInt(sch.Active),
		sch.Stats.TotalCount, sch.Stats.SuccessCount, sch.Stats.FailureCount, sch.Stats.LastExecutedAt, sch.Stats.AvgResponseTimeMs,
		sch.CreatedAt, sch.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanSchedule(row interface{ Scan(...interface{}) error }) (*models.Schedule, error) {
	var sch models.Schedule
	var payload, recurrence string
	var active int
	var lastExecuted sql.NullTime
	err := row.Scan(&sch.ID, &sch.EndpointID, &payload, &sch.DueAt, &recurrence, &active,
		&sch.Stats.TotalCount, &sch.Stats.SuccessCount, &sch.Stats.FailureCount, &lastExecuted, &sch.Stats.AvgResponseTimeMs,
		&sch.CreatedAt, &sch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sch.Payload = json.RawMessage(payload)
	sch.Recurrence = models.Recurrence(recurrence)
	sch.Active = active == 1
	if lastExecuted.Valid {
		t := lastExecuted.Time
		sch.Stats.LastExecutedAt = &t
	}
	return &sch, nil
}

func (s *SQLiteStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sch, err := s.scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sch, err
}

func (s *SQLiteStorage) ListSchedules(ctx context.Context, limit, offset int) ([]models.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listSchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules ORDER BY due_at ASC LIMIT ? OFFSET ?`, limit, offset)
}

func (s *SQLiteStorage) ListSchedulesByEndpoint(ctx context.Context, endpointID string) ([]models.Schedule, error) {
	return s.listSchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE endpoint_id = ? ORDER BY due_at ASC`, endpointID)
}

func (s *SQLiteStorage) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]models.Schedule, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listSchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE active = 1 AND due_at <= ? ORDER BY due_at ASC LIMIT ?`,
		now.UTC(), limit)
}

func (s *SQLiteStorage) listSchedules(ctx context.Context, query string, args ...interface{}) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		sch, err := s.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sch)
	}
	return schedules, rows.Err()
}

func (s *SQLiteStorage) UpdateSchedule(ctx context.Context, sch *models.Schedule) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET endpoint_id = ?, payload = ?, due_at = ?, recurrence = ?, active = ?, updated_at = ? WHERE id = ?`,
		sch.EndpointID, string(sch.Payload), sch.DueAt, string(sch.Recurrence), boolToInt(sch.Active), time.Now().UTC(), sch.ID,
	)
	return err
}

func (s *SQLiteStorage) UpdateScheduleAfterRun(ctx context.Context, sch *models.Schedule) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET due_at = ?, active = ?,
			total_count = ?, success_count = ?, failure_count = ?, last_executed_at = ?, avg_response_ms = ?, updated_at = ?
		 WHERE id = ?`,
		sch.DueAt, boolToInt(sch.Active),
		sch.Stats.TotalCount, sch.Stats.SuccessCount, sch.Stats.FailureCount, sch.Stats.LastExecutedAt, sch.Stats.AvgResponseTimeMs,
		time.Now().UTC(), sch.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteSchedule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ToggleSchedule(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC(), id)
	return err
}

// --- Overview ---

func (s *SQLiteStorage) GetOverview(ctx context.Context) (*Overview, error) {
	ov := &Overview{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints`).Scan(&ov.TotalEndpoints)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE active = 1`).Scan(&ov.ActiveEndpoints)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules`).Scan(&ov.TotalSchedules)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE active = 1`).Scan(&ov.ActiveSchedules)
	s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_count), 0), COALESCE(SUM(success_count), 0), COALESCE(SUM(failure_count), 0) FROM schedules`).
		Scan(&ov.TotalDispatches, &ov.SuccessCount, &ov.FailureCount)

	if ov.TotalDispatches > 0 {
		ov.SuccessRate = float64(ov.SuccessCount) / float64(ov.TotalDispatches) * 100
	}

	return ov, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
