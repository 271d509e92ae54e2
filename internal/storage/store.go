package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
)

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Store persists detection runs and the alerts they produced.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveRun(ctx context.Context, run model.Run) error
	SaveAlerts(ctx context.Context, runID string, alerts []model.Alert) error
	// Record saves a run and its alerts in one transaction.
	Record(ctx context.Context, run model.Run, alerts []model.Alert) error
	ListAlerts(ctx context.Context, runID string) ([]model.Alert, error)
}

// NewStore returns nil, nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// queries holds the driver-specific statements and time encoding.
type queries struct {
	insertRun   string
	insertAlert string
	ts          func(time.Time) any
}

func (b *baseStore) saveRun(ctx context.Context, q queries, run model.Run) error {
	if b.db == nil {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, q.insertRun, runArgs(q, run)...); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// insertAlerts writes all alerts of one run in a single transaction.
func (b *baseStore) insertAlerts(ctx context.Context, q queries, runID string, alerts []model.Alert) error {
	if b.db == nil || len(alerts) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertAlertsTx(ctx, tx, q, runID, alerts); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *baseStore) record(ctx context.Context, q queries, run model.Run, alerts []model.Alert) error {
	if b.db == nil {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q.insertRun, runArgs(q, run)...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	if len(alerts) > 0 {
		if err := insertAlertsTx(ctx, tx, q, run.ID, alerts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func runArgs(q queries, run model.Run) []any {
	return []any{
		run.ID,
		q.ts(run.StartedAt.UTC()),
		run.Events,
		run.Alerts,
		run.Threshold,
		run.WindowMinutes,
	}
}

func insertAlertsTx(ctx context.Context, tx *sql.Tx, q queries, runID string, alerts []model.Alert) error {
	stmt, err := tx.PrepareContext(ctx, q.insertAlert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx,
			runID,
			a.SourceID,
			a.Category,
			string(a.Severity),
			a.AttemptCount,
			a.WindowMinutes,
			q.ts(a.WindowStart),
			q.ts(a.WindowEnd),
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.SourceID, err)
		}
	}
	return nil
}
