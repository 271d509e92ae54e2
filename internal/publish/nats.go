// Package publish fans detection alerts out to a NATS subject.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
	"sentinelforge/internal/report"
)

// Message is the payload published for every alert.
type Message struct {
	RunID string             `json:"run_id"`
	Alert report.AlertRecord `json:"alert"`
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = config.DefaultNATSSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials NATS with infinite reconnects. It returns nil, nil when
// publishing is disabled.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := []nats.Option{
		nats.Name("sentinelforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && logger != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logger != nil {
				logger.Info("nats reconnected", "url", c.ConnectedUrl())
			}
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	return NewPublisher(conn, cfg.Subject), nil
}

func (p *Publisher) Subject() string {
	return p.subject
}

func (p *Publisher) Publish(ctx context.Context, runID string, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Message{RunID: runID, Alert: report.Serialize([]model.Alert{alert})[0]})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
