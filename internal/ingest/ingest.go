package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sentinelforge/internal/metrics"
	"sentinelforge/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.Event, ev model.Event, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.DroppedEvents.WithLabelValues("channel_full").Inc()
		if logger != nil {
			logger.Warn("event channel full, dropping event", "source_id", ev.SourceID, "timestamp", ev.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// processLine parses one streamed line and forwards the event. Bad lines are
// counted and dropped.
func processLine(ctx context.Context, parser *Parser, out chan<- model.Event, logger *slog.Logger, origin, line string) {
	ev, err := parser.ParseEvent(line)
	if err != nil {
		if errors.Is(err, ErrBlankLine) {
			return
		}
		metrics.LinesTotal.WithLabelValues("skipped").Inc()
		if logger != nil {
			logger.Debug("dropping malformed line", "origin", origin, "err", err)
		}
		return
	}
	metrics.LinesTotal.WithLabelValues("parsed").Inc()
	SendNonBlocking(ctx, out, ev, logger)
}
