package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 5, cfg.Detection.FailureThreshold)
	assert.Equal(t, 2, cfg.Detection.TimeWindowMinutes)
	assert.Equal(t, "UTC", cfg.Parser.Timezone)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "sentinelforge.yaml", `
log_level: debug
detection:
  failure_threshold: 8
  time_window_minutes: 5
pipeline:
  flush_interval: 15s
nats:
  enabled: true
  url: nats://nats:4222
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Detection.FailureThreshold)
	assert.Equal(t, 5, cfg.Detection.TimeWindowMinutes)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, DefaultNATSSubject, cfg.NATS.Subject)
	assert.Equal(t, 1000, cfg.Alerts.StoreLimit)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "sentinelforge.json", `{"detection":{"failure_threshold":3,"time_window_minutes":1},"report":{"format":"json"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Detection.FailureThreshold)
	assert.Equal(t, "json", cfg.Report.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: "   \n"},
		{name: "zero threshold", content: "detection:\n  failure_threshold: 0\n"},
		{name: "negative window", content: "detection:\n  time_window_minutes: -1\n"},
		{name: "bad timezone", content: "parser:\n  timezone: Mars/Olympus\n"},
		{name: "bad report format", content: "report:\n  format: xml\n"},
		{name: "kafka missing topic", content: "ingest:\n  kafka:\n    enabled: true\n    brokers: [localhost:9092]\n"},
		{name: "unknown storage driver", content: "storage:\n  enabled: true\n  driver: mongo\n"},
		{name: "bad allowlist entry", content: "allowlist:\n  - 10.0.0.0/40\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "cfg.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Detection.FailureThreshold = 12
	require.NoError(t, Save(path, cfg))

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 12, m.Get().Detection.FailureThreshold)

	cfg.Detection.FailureThreshold = 20
	require.NoError(t, Save(path, cfg))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.True(t, needs)

	reloaded, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.Detection.FailureThreshold)
	assert.Equal(t, 20, m.Get().Detection.FailureThreshold)
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	m := NewStaticManager(cfg)
	assert.Same(t, cfg, m.Get())
	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}
