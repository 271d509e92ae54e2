package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sentinelforge/internal/model"
)

// sqlite has no native time type; timestamps are stored as RFC3339Nano text.
const sqliteTimeLayout = time.RFC3339Nano

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sentinelforge.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			events INTEGER NOT NULL,
			alerts INTEGER NOT NULL,
			threshold INTEGER NOT NULL,
			window_minutes INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			window_minutes INTEGER NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source_id)`,
	})
}

var sqliteQueries = queries{
	insertRun: `INSERT INTO runs (id, started_at, events, alerts, threshold, window_minutes)
		VALUES (?, ?, ?, ?, ?, ?)`,
	insertAlert: `INSERT INTO alerts (run_id, source_id, category, severity, attempts, window_minutes, window_start, window_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	ts: func(t time.Time) any { return t.Format(sqliteTimeLayout) },
}

func (s *sqliteStore) SaveRun(ctx context.Context, run model.Run) error {
	return s.saveRun(ctx, sqliteQueries, run)
}

func (s *sqliteStore) SaveAlerts(ctx context.Context, runID string, alerts []model.Alert) error {
	return s.insertAlerts(ctx, sqliteQueries, runID, alerts)
}

func (s *sqliteStore) Record(ctx context.Context, run model.Run, alerts []model.Alert) error {
	return s.record(ctx, sqliteQueries, run, alerts)
}

func (s *sqliteStore) ListAlerts(ctx context.Context, runID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, category, severity, attempts, window_minutes, window_start, window_end
		FROM alerts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Alert, 0)
	for rows.Next() {
		var (
			a          model.Alert
			severity   string
			start, end string
		)
		if err := rows.Scan(&a.SourceID, &a.Category, &severity, &a.AttemptCount, &a.WindowMinutes, &start, &end); err != nil {
			return nil, err
		}
		a.Severity = model.Severity(severity)
		if a.WindowStart, err = time.Parse(sqliteTimeLayout, start); err != nil {
			return nil, fmt.Errorf("parse window_start: %w", err)
		}
		if a.WindowEnd, err = time.Parse(sqliteTimeLayout, end); err != nil {
			return nil, fmt.Errorf("parse window_end: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
