package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinelforge/internal/config"
	"sentinelforge/internal/logging"
	"sentinelforge/internal/model"
)

func collect(t *testing.T, ch <-chan model.Event, n int) []model.Event {
	t.Helper()
	out := make([]model.Event, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("received %d of %d events", len(out), n)
		}
	}
	return out
}

func postEvents(t *testing.T, h http.Handler, body string) (int, map[string]int) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp map[string]int
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestRESTAcceptsLines(t *testing.T) {
	out := make(chan model.Event, 10)
	h := NewRESTServer(NewParser(nil), out, logging.Discard()).Handler()

	code, resp := postEvents(t, h, "2026-01-18 10:00:00 | IP=192.168.1.10 | user=admin | status=FAIL\n\ngarbage\n")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp["accepted"])
	assert.Equal(t, 1, resp["failed"])

	ev := collect(t, out, 1)[0]
	assert.Equal(t, "192.168.1.10", ev.SourceID)
}

func TestRESTAcceptsJSON(t *testing.T) {
	out := make(chan model.Event, 10)
	h := NewRESTServer(NewParser(nil), out, logging.Discard()).Handler()

	code, resp := postEvents(t, h, `[
		{"timestamp":"2026-01-18 10:00:00","src_ip":"10.0.0.1","username":"root","result":"failed"},
		{"timestamp":"2026-01-18 10:00:05","ip":"10.0.0.1","user":"root","status":"SUCCESS"},
		{"timestamp":"yesterday","ip":"10.0.0.1","user":"root","status":"FAIL"}
	]`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, resp["accepted"])
	assert.Equal(t, 1, resp["failed"])

	events := collect(t, out, 2)
	assert.Equal(t, model.OutcomeFail, events[0].Outcome)
	assert.Equal(t, model.OutcomeSuccess, events[1].Outcome)

	code, resp = postEvents(t, h, `{"ts":"2026-01-18T10:00:00Z","source":"10.0.0.2","subject":"bob","outcome":"fail"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp["accepted"])
}

func TestRESTReportsDroppedEvents(t *testing.T) {
	out := make(chan model.Event, 1)
	h := NewRESTServer(NewParser(nil), out, logging.Discard()).Handler()

	code, resp := postEvents(t, h, "2026-01-18 10:00:00 | IP=192.168.1.10 | user=admin | status=FAIL\n"+
		"2026-01-18 10:00:01 | IP=192.168.1.10 | user=admin | status=FAIL\n"+
		"2026-01-18 10:00:02 | IP=192.168.1.10 | user=admin | status=FAIL\n")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp["accepted"])
	assert.Equal(t, 2, resp["dropped"])
	assert.Equal(t, 0, resp["failed"])

	code, resp = postEvents(t, h, `{"ts":"2026-01-18T10:00:00Z","source":"10.0.0.2","subject":"bob","outcome":"fail"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, resp["accepted"])
	assert.Equal(t, 1, resp["dropped"])
}

func TestRESTRejects(t *testing.T) {
	h := NewRESTServer(NewParser(nil), make(chan model.Event, 1), logging.Discard()).Handler()

	code, _ := postEvents(t, h, "   ")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = postEvents(t, h, "[{broken")
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTCPStream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.TCPStream = config.TCPStreamConfig{Enabled: true, Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Event, 10)
	addr := StartTCPStream(ctx, config.NewStaticManager(cfg), NewParser(nil), out, logging.Discard())
	require.NotNil(t, addr)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	for i := 0; i < 3; i++ {
		_, err := fmt.Fprintf(conn, "2026-01-18 10:00:0%d | IP=10.0.0.9 | user=admin | status=FAIL\n", i)
		require.NoError(t, err)
	}
	_, err = fmt.Fprintln(conn, "not a log line")
	require.NoError(t, err)

	events := collect(t, out, 3)
	assert.Equal(t, "10.0.0.9", events[2].SourceID)
}

func TestTCPStreamDisabled(t *testing.T) {
	addr := StartTCPStream(context.Background(), config.NewStaticManager(config.DefaultConfig()), NewParser(nil), make(chan model.Event), nil)
	assert.Nil(t, addr)
}

func TestFileTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	require.NoError(t, os.WriteFile(path, []byte("2026-01-18 10:00:00 | IP=10.0.0.3 | user=admin | status=FAIL\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Ingest.FileTail = config.FileTailConfig{Enabled: true, Files: []string{path}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Event, 10)
	StartFileTail(ctx, config.NewStaticManager(cfg), NewParser(nil), out, logging.Discard())
	first := collect(t, out, 1)
	assert.Equal(t, "10.0.0.3", first[0].SourceID)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2026-01-18 10:00:05 | IP=10.0.0.4 | user=admin | status=SUCCESS\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := collect(t, out, 1)
	assert.Equal(t, "10.0.0.4", second[0].SourceID)
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.Event, 1)
	ctx := context.Background()
	assert.True(t, SendNonBlocking(ctx, out, model.Event{SourceID: "a"}, nil))
	assert.False(t, SendNonBlocking(ctx, out, model.Event{SourceID: "b"}, nil))
}

func TestKafkaValueWithSeveralLines(t *testing.T) {
	out := make(chan model.Event, 10)
	value := []byte("2026-01-18 10:00:00 | IP=10.0.0.7 | user=admin | status=FAIL\n" +
		"junk\n" +
		"2026-01-18 10:00:01 | IP=10.0.0.7 | user=admin | status=FAIL")
	processKafkaValue(context.Background(), NewParser(nil), out, logging.Discard(), value)

	events := collect(t, out, 2)
	assert.Equal(t, time.Date(2026, 1, 18, 10, 0, 1, 0, time.UTC), events[1].Timestamp)
	assert.Empty(t, out)
}

func TestFileTailReopensAfterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	require.NoError(t, os.WriteFile(path, []byte(
		"2026-01-18 10:00:00 | IP=10.0.0.3 | user=admin | status=FAIL\n"+
			"2026-01-18 10:00:01 | IP=10.0.0.3 | user=admin | status=FAIL\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Ingest.FileTail = config.FileTailConfig{Enabled: true, Files: []string{path}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Event, 10)
	StartFileTail(ctx, config.NewStaticManager(cfg), NewParser(nil), out, logging.Discard())
	collect(t, out, 2)

	require.NoError(t, os.WriteFile(path, []byte("2026-01-18 11:00:00 | IP=10.0.0.8 | user=root | status=FAIL\n"), 0o644))
	ev := collect(t, out, 1)[0]
	assert.Equal(t, "10.0.0.8", ev.SourceID)
}
