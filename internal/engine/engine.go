package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"sentinelforge/internal/config"
	"sentinelforge/internal/model"
)

var ErrInvalidConfig = errors.New("invalid detection config")

// Config holds the brute-force rule parameters for a single detection run.
type Config struct {
	FailureThreshold  int
	TimeWindowMinutes int
}

func ConfigFrom(d config.DetectionConfig) Config {
	return Config{
		FailureThreshold:  d.FailureThreshold,
		TimeWindowMinutes: d.TimeWindowMinutes,
	}
}

func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be >= 1, got %d", ErrInvalidConfig, c.FailureThreshold)
	}
	if c.TimeWindowMinutes < 1 {
		return fmt.Errorf("%w: time window must be >= 1 minute, got %d", ErrInvalidConfig, c.TimeWindowMinutes)
	}
	return nil
}

func (c Config) window() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

// Detect runs the brute-force rule over events and returns at most one alert
// per source. Only failed attempts are considered. Alerts are ordered by the
// first failed attempt of each source in the input. events is not modified.
func Detect(cfg Config, events []model.Event) []model.Alert {
	alerts := make([]model.Alert, 0)
	for _, g := range groupFailures(events) {
		if alert, ok := scanGroup(cfg, g); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// DetectParallel is Detect with source groups scanned on up to workers
// goroutines. The result is identical to Detect.
func DetectParallel(ctx context.Context, cfg Config, events []model.Event, workers int) ([]model.Alert, error) {
	groups := groupFailures(events)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*model.Alert, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, grp := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if alert, ok := scanGroup(cfg, grp); ok {
				results[i] = &alert
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alerts := make([]model.Alert, 0, len(results))
	for _, a := range results {
		if a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts, nil
}

func newAlert(cfg Config, sourceID string, start, end time.Time, count int) model.Alert {
	return model.Alert{
		SourceID:      sourceID,
		Category:      model.CategoryBruteForce,
		Severity:      model.SeverityHigh,
		AttemptCount:  count,
		WindowMinutes: cfg.TimeWindowMinutes,
		WindowStart:   start,
		WindowEnd:     end,
	}
}
