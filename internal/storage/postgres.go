package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sentinelforge/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sentinelforge?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			events INTEGER NOT NULL,
			alerts INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			window_minutes INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id),
			source_id TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			window_minutes INTEGER NOT NULL,
			window_start TIMESTAMP NOT NULL,
			window_end TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source_id)`,
	})
}

// Window bounds are wall-clock log times, stored without a zone.
var postgresQueries = queries{
	insertRun: `INSERT INTO runs (id, started_at, events, alerts, threshold, window_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
	insertAlert: `INSERT INTO alerts (run_id, source_id, category, severity, attempts, window_minutes, window_start, window_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	ts: func(t time.Time) any { return t },
}

func (s *postgresStore) SaveRun(ctx context.Context, run model.Run) error {
	return s.saveRun(ctx, postgresQueries, run)
}

func (s *postgresStore) SaveAlerts(ctx context.Context, runID string, alerts []model.Alert) error {
	return s.insertAlerts(ctx, postgresQueries, runID, alerts)
}

func (s *postgresStore) Record(ctx context.Context, run model.Run, alerts []model.Alert) error {
	return s.record(ctx, postgresQueries, run, alerts)
}

func (s *postgresStore) ListAlerts(ctx context.Context, runID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, category, severity, attempts, window_minutes, window_start, window_end
		FROM alerts WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Alert, 0)
	for rows.Next() {
		var (
			a        model.Alert
			severity string
		)
		if err := rows.Scan(&a.SourceID, &a.Category, &severity, &a.AttemptCount, &a.WindowMinutes, &a.WindowStart, &a.WindowEnd); err != nil {
			return nil, err
		}
		a.Severity = model.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}
