package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelforge/internal/model"
)

func sampleAlert() model.Alert {
	start := time.Date(2026, 1, 18, 10, 0, 0, 0, time.UTC)
	return model.Alert{
		SourceID:      "192.168.1.10",
		Category:      model.CategoryBruteForce,
		Severity:      model.SeverityHigh,
		AttemptCount:  5,
		WindowMinutes: 2,
		WindowStart:   start,
		WindowEnd:     start.Add(40 * time.Second),
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "alerts.json")
	require.NoError(t, WriteJSON(path, []model.Alert{sampleAlert()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "192.168.1.10", got[0]["ip"])
	assert.Equal(t, "Brute Force", got[0]["type"])
	assert.Equal(t, "HIGH", got[0]["severity"])
	assert.EqualValues(t, 5, got[0]["attempts"])
	assert.EqualValues(t, 2, got[0]["window_minutes"])
	assert.Equal(t, "2026-01-18T10:00:00", got[0]["start_time"])
	assert.Equal(t, "2026-01-18T10:00:40", got[0]["end_time"])
}

func TestWriteJSONOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	require.NoError(t, WriteJSON(path, []model.Alert{sampleAlert(), sampleAlert()}))
	require.NoError(t, WriteJSON(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestConsoleNoAlerts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Console(&buf, 12, nil))
	assert.Contains(t, buf.String(), "SentinelForge — Log Parsing Summary")
	assert.Contains(t, buf.String(), "SentinelForge — Security Alerts")
	assert.Contains(t, buf.String(), "Total parsed log entries: 12")
	assert.Contains(t, buf.String(), "No brute-force activity detected.")
}

func TestConsoleWithAlert(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Console(&buf, 5, []model.Alert{sampleAlert()}))
	out := buf.String()
	assert.Contains(t, out, "[HIGH] Brute Force detected")
	assert.Contains(t, out, "IP Address   : 192.168.1.10")
	assert.Contains(t, out, "Attempts     : 5 in 2 minutes")
	assert.Contains(t, out, "2026-01-18 10:00:00 → 2026-01-18 10:00:40")
	assert.NotContains(t, out, "No brute-force activity detected.")
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}
