package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	store, err := NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	start := time.Date(2026, 1, 18, 10, 0, 0, 0, time.UTC)
	alerts := []model.Alert{
		{
			SourceID:      "192.168.1.10",
			Category:      model.CategoryBruteForce,
			Severity:      model.SeverityHigh,
			AttemptCount:  5,
			WindowMinutes: 2,
			WindowStart:   start,
			WindowEnd:     start.Add(40 * time.Second),
		},
		{
			SourceID:      "10.0.0.7",
			Category:      model.CategoryBruteForce,
			Severity:      model.SeverityHigh,
			AttemptCount:  6,
			WindowMinutes: 2,
			WindowStart:   start.Add(time.Minute),
			WindowEnd:     start.Add(2 * time.Minute),
		},
	}
	run := model.Run{ID: "run-1", StartedAt: time.Now(), Events: 20, Alerts: len(alerts), Threshold: 5, WindowMinutes: 2}

	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.SaveAlerts(ctx, run.ID, alerts))

	got, err := store.ListAlerts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range alerts {
		assert.Equal(t, alerts[i].SourceID, got[i].SourceID)
		assert.Equal(t, alerts[i].Severity, got[i].Severity)
		assert.Equal(t, alerts[i].AttemptCount, got[i].AttemptCount)
		assert.True(t, alerts[i].WindowStart.Equal(got[i].WindowStart))
		assert.True(t, alerts[i].WindowEnd.Equal(got[i].WindowEnd))
	}

	other, err := store.ListAlerts(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteDuplicateRun(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)
	run := model.Run{ID: "dup", StartedAt: time.Now()}
	require.NoError(t, store.SaveRun(ctx, run))
	assert.Error(t, store.SaveRun(ctx, run))
}

func TestSQLiteRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)
	start := time.Date(2026, 1, 18, 10, 0, 0, 0, time.UTC)
	alerts := []model.Alert{{
		SourceID:      "192.168.1.10",
		Category:      model.CategoryBruteForce,
		Severity:      model.SeverityHigh,
		AttemptCount:  5,
		WindowMinutes: 2,
		WindowStart:   start,
		WindowEnd:     start.Add(40 * time.Second),
	}}
	run := model.Run{ID: "run-rec", StartedAt: time.Now(), Events: 5, Alerts: 1, Threshold: 5, WindowMinutes: 2}

	require.NoError(t, store.Record(ctx, run, alerts))
	got, err := store.ListAlerts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "192.168.1.10", got[0].SourceID)

	require.NoError(t, store.Record(ctx, model.Run{ID: "run-empty", StartedAt: time.Now()}, nil))
}

func TestSQLiteRecordRollsBackRunOnAlertFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)
	db := store.(*sqliteStore).db
	_, err := db.ExecContext(ctx, `DROP TABLE alerts`)
	require.NoError(t, err)

	run := model.Run{ID: "run-partial", StartedAt: time.Now(), Events: 5, Alerts: 1}
	alerts := []model.Alert{{SourceID: "10.0.0.1", Severity: model.SeverityHigh}}
	require.Error(t, store.Record(ctx, run, alerts))

	var runs int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Zero(t, runs)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(config.StorageConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = NewStore(config.StorageConfig{Enabled: true, Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
