// Package pipeline batches streamed authentication events and runs the
// brute-force detector over each batch.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sentinelforge/internal/alerts"
	"sentinelforge/internal/config"
	"sentinelforge/internal/engine"
	"sentinelforge/internal/logging"
	"sentinelforge/internal/metrics"
	"sentinelforge/internal/model"
	"sentinelforge/internal/storage"
)

// Publisher delivers an alert to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, runID string, alert model.Alert) error
}

type Options struct {
	Logger    *slog.Logger
	Sources   *metrics.Store
	Alerts    *alerts.Store
	Store     storage.Store
	Publisher Publisher
}

type Pipeline struct {
	cfg       *config.Manager
	logger    *slog.Logger
	sources   *metrics.Store
	alerts    *alerts.Store
	store     storage.Store
	publisher Publisher

	allow    atomic.Pointer[Allowlist]
	cooldown *Cooldown
	dedupe   *DedupeCache

	mu      sync.Mutex
	buf     []model.Event
	started time.Time
	runs    atomic.Int64
	lastRun atomic.Pointer[model.Run]
	now     func() time.Time
}

// Status is a point-in-time view of the pipeline for the API.
type Status struct {
	StartedAt time.Time  `json:"started_at"`
	Runs      int64      `json:"runs"`
	Buffered  int        `json:"buffered"`
	LastRun   *model.Run `json:"last_run,omitempty"`
}

func New(cfg *config.Manager, opts Options) (*Pipeline, error) {
	allow, err := NewAllowlist(cfg.Get().Allowlist)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		logger:    opts.Logger,
		sources:   opts.Sources,
		alerts:    opts.Alerts,
		store:     opts.Store,
		publisher: opts.Publisher,
		cooldown:  NewCooldown(),
		dedupe:    NewDedupeCache(),
		started:   time.Now().UTC(),
		now:       time.Now,
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.alerts == nil {
		p.alerts = alerts.NewStore(cfg.Get().Alerts.StoreLimit)
	}
	if p.sources == nil {
		p.sources = metrics.NewStore(cfg.Get().Sources.StoreLimit)
	}
	p.allow.Store(allow)
	return p, nil
}

// UpdateConfig rebuilds state derived from the config after a reload. The
// detection settings themselves are read from the manager on every flush.
func (p *Pipeline) UpdateConfig(cfg *config.Config) error {
	allow, err := NewAllowlist(cfg.Allowlist)
	if err != nil {
		return err
	}
	p.allow.Store(allow)
	return nil
}

// Run consumes events until ctx is cancelled or in is closed, flushing a
// batch every flush_interval or once max_batch events are buffered. The
// remaining buffer is flushed once before Run returns.
func (p *Pipeline) Run(ctx context.Context, in <-chan model.Event) {
	interval := p.cfg.Get().Pipeline.FlushInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-in:
			if !ok {
				p.finalFlush()
				return
			}
			if p.Add(ev) {
				p.flushAndLog(ctx)
			}
		case <-ticker.C:
			p.flushAndLog(ctx)
		case <-ctx.Done():
			p.finalFlush()
			return
		}
		// pick up a reloaded flush_interval
		if next := p.cfg.Get().Pipeline.FlushInterval; next > 0 && next != interval {
			interval = next
			ticker.Reset(interval)
			p.logger.Info("flush interval changed", "flush_interval", interval.String())
		}
	}
}

// Add buffers ev unless it is allowlisted or a duplicate. It reports whether
// the buffer has reached max_batch.
func (p *Pipeline) Add(ev model.Event) bool {
	cfg := p.cfg.Get()
	metrics.EventsTotal.WithLabelValues(string(ev.Outcome)).Inc()
	p.sources.Observe(ev)

	if p.allow.Load().Contains(ev.SourceID) {
		metrics.DroppedEvents.WithLabelValues("allowlisted").Inc()
		return false
	}
	if ttl := cfg.Pipeline.DedupeWindow; ttl > 0 && p.dedupe.Seen(hashEvent(ev), p.now(), ttl) {
		metrics.DroppedEvents.WithLabelValues("duplicate").Inc()
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, ev)
	return len(p.buf) >= cfg.Pipeline.MaxBatch
}

// Flush runs detection over the buffered events as one independent run. It
// returns a zero Run and no alerts when nothing is buffered. If detection is
// cancelled the batch is put back in front of the buffer.
func (p *Pipeline) Flush(ctx context.Context) (model.Run, []model.Alert, error) {
	p.mu.Lock()
	batch := p.buf
	p.buf = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return model.Run{}, nil, nil
	}

	cfg := p.cfg.Get()
	detection := engine.ConfigFrom(cfg.Detection)
	run := model.Run{
		ID:            uuid.NewString(),
		StartedAt:     p.now().UTC(),
		Events:        len(batch),
		Threshold:     detection.FailureThreshold,
		WindowMinutes: detection.TimeWindowMinutes,
	}

	begin := time.Now()
	found, err := engine.DetectParallel(ctx, detection, batch, cfg.Detection.Workers)
	if err != nil {
		p.mu.Lock()
		p.buf = append(batch, p.buf...)
		p.mu.Unlock()
		return run, nil, err
	}
	metrics.DetectionDuration.Observe(time.Since(begin).Seconds())
	metrics.DetectionRuns.Inc()
	run.Alerts = len(found)
	p.runs.Add(1)
	p.lastRun.Store(&run)

	p.record(ctx, cfg, run, found)
	return run, found, nil
}

func (p *Pipeline) record(ctx context.Context, cfg *config.Config, run model.Run, found []model.Alert) {
	log := p.logger.With(logging.FieldRunID, run.ID)
	log.Info("detection run complete", "events", run.Events, "alerts", run.Alerts)

	for _, a := range found {
		metrics.AlertsTotal.WithLabelValues(a.Category).Inc()
		p.alerts.Add(alerts.Entry{RunID: run.ID, DetectedAt: run.StartedAt, Alert: a})
		log.Warn("brute force detected",
			logging.FieldSourceID, a.SourceID,
			"attempts", a.AttemptCount,
			"window_minutes", a.WindowMinutes,
			"start", a.WindowStart,
			"end", a.WindowEnd,
		)
	}

	if p.store != nil {
		if err := p.store.Record(ctx, run, found); err != nil {
			metrics.SinkErrors.WithLabelValues("storage").Inc()
			log.Error("store run", logging.FieldError, err)
		}
	}

	if p.publisher == nil {
		return
	}
	for _, a := range found {
		if !p.cooldown.Allow(a.SourceID, p.now(), cfg.Pipeline.AlertCooldown) {
			log.Debug("alert notification suppressed by cooldown", logging.FieldSourceID, a.SourceID)
			continue
		}
		if err := p.publisher.Publish(ctx, run.ID, a); err != nil {
			metrics.SinkErrors.WithLabelValues("nats").Inc()
			log.Error("publish alert", logging.FieldSourceID, a.SourceID, logging.FieldError, err)
		}
	}
}

// flushAndLog runs a flush from the Run loop. A batch already taken is
// finished even if ctx is cancelled meanwhile; cancellation only stops Run.
func (p *Pipeline) flushAndLog(ctx context.Context) {
	if _, _, err := p.Flush(context.WithoutCancel(ctx)); err != nil {
		p.logger.Error("detection run failed", logging.FieldError, err)
	}
}

func (p *Pipeline) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := p.Flush(ctx); err != nil {
		p.logger.Error("final detection run failed", logging.FieldError, err)
	}
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	buffered := len(p.buf)
	p.mu.Unlock()
	return Status{
		StartedAt: p.started,
		Runs:      p.runs.Load(),
		Buffered:  buffered,
		LastRun:   p.lastRun.Load(),
	}
}

// Reset drops buffered events and forgets cooldown and duplicate history.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.buf = nil
	p.mu.Unlock()
	p.cooldown.Reset()
	p.dedupe.Reset()
}

// FilterAllowlisted returns the events whose source is not allowlisted and
// the number removed. events is not modified.
func FilterAllowlisted(events []model.Event, allow *Allowlist) ([]model.Event, int) {
	if allow.Empty() {
		return events, 0
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if allow.Contains(ev.SourceID) {
			continue
		}
		out = append(out, ev)
	}
	return out, len(events) - len(out)
}
