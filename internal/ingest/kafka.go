package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
)

// StartKafka consumes log lines from the configured topic. A message value
// may hold several newline-separated lines.
func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        current.Brokers,
		Topic:          current.Topic,
		GroupID:        current.GroupID,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	go consumeKafka(ctx, reader, parser, out, logger)
}

func consumeKafka(ctx context.Context, reader *kafka.Reader, parser *Parser, out chan<- model.Event, logger *slog.Logger) {
	defer reader.Close()
	backoff := 500 * time.Millisecond
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err, "retry_in", backoff.String())
			}
			if !BackoffSleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = 500 * time.Millisecond
		processKafkaValue(ctx, parser, out, logger, m.Value)
	}
}

func processKafkaValue(ctx context.Context, parser *Parser, out chan<- model.Event, logger *slog.Logger, value []byte) {
	for _, line := range bytes.Split(value, []byte("\n")) {
		processLine(ctx, parser, out, logger, "kafka", string(line))
	}
}
