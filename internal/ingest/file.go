package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sentinelforge/internal/metrics"
	"sentinelforge/internal/model"
)

// Stats summarizes one batch read.
type Stats struct {
	Lines   int `json:"lines"`
	Parsed  int `json:"parsed"`
	Blank   int `json:"blank"`
	Skipped int `json:"skipped"`
}

// ReadFile parses every line of path. Malformed lines are counted and
// skipped; only failing to open or read the file is an error.
func ReadFile(path string, parser *Parser, logger *slog.Logger) ([]model.Event, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open log file %s: %w", path, err)
	}
	defer f.Close()
	events, stats, err := ReadEvents(f, parser, logger)
	if err != nil {
		return nil, stats, fmt.Errorf("read log file %s: %w", path, err)
	}
	return events, stats, nil
}

func ReadEvents(r io.Reader, parser *Parser, logger *slog.Logger) ([]model.Event, Stats, error) {
	var stats Stats
	events := make([]model.Event, 0)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		stats.Lines++
		ev, err := parser.ParseEvent(scanner.Text())
		switch {
		case errors.Is(err, ErrBlankLine):
			stats.Blank++
			continue
		case err != nil:
			stats.Skipped++
			metrics.LinesTotal.WithLabelValues("skipped").Inc()
			if logger != nil {
				logger.Debug("skipping malformed line", "line", stats.Lines, "err", err)
			}
			continue
		}
		stats.Parsed++
		metrics.LinesTotal.WithLabelValues("parsed").Inc()
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, stats, err
	}
	return events, stats, nil
}
