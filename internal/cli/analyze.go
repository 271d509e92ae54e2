package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sentinelforge/internal/config"
	"sentinelforge/internal/engine"
	"sentinelforge/internal/ingest"
	"sentinelforge/internal/logging"
	"sentinelforge/internal/model"
	"sentinelforge/internal/pipeline"
	"sentinelforge/internal/report"
	"sentinelforge/internal/storage"
)

type analyzeOptions struct {
	output    string
	report    string
	noReport  bool
	threshold int
	window    int
	workers   int
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <logfile>",
		Short: "Detect brute-force activity in a log file",
		Long: `Parse an authentication log, run the brute-force rule over it, print the
results and write a JSON report.

Lines look like:
  2026-01-18 10:00:00 | IP=192.168.1.10 | user=admin | status=FAIL

JSON objects and CSV rows with the same fields are accepted too. Lines that
do not parse are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output format: text or json (default from config)")
	f.StringVar(&opts.report, "report", "", "JSON report path (default from config)")
	f.BoolVar(&opts.noReport, "no-report", false, "skip writing the JSON report")
	f.IntVar(&opts.threshold, "threshold", 0, "failed attempts that trigger an alert")
	f.IntVar(&opts.window, "window", 0, "sliding window length in minutes")
	f.IntVar(&opts.workers, "workers", 0, "parallel detection workers (0 = GOMAXPROCS)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, opts *analyzeOptions) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyAnalyzeFlags(cmd, cfg, opts); err != nil {
		return err
	}
	detection := engine.ConfigFrom(cfg.Detection)
	if err := detection.Validate(); err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the report.
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	loc, err := time.LoadLocation(cfg.Parser.Timezone)
	if err != nil {
		return fmt.Errorf("parser.timezone: %w", err)
	}
	allow, err := pipeline.NewAllowlist(cfg.Allowlist)
	if err != nil {
		return err
	}

	events, stats, err := ingest.ReadFile(path, ingest.NewParser(loc), logger)
	if err != nil {
		return err
	}
	logger.Debug("log file parsed", logging.FieldPath, path,
		"lines", stats.Lines, "parsed", stats.Parsed, "skipped", stats.Skipped, "blank", stats.Blank)

	candidates, removed := pipeline.FilterAllowlisted(events, allow)
	if removed > 0 {
		logger.Info("allowlisted events ignored", "count", removed)
	}

	ctx := commandContext(cmd)
	alerts, err := engine.DetectParallel(ctx, detection, candidates, cfg.Detection.Workers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch cfg.Report.Format {
	case "json":
		err = report.EncodeJSON(out, alerts)
	default:
		err = report.Console(out, len(events), alerts)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if !opts.noReport && cfg.Report.Path != "" {
		if err := report.WriteJSON(cfg.Report.Path, alerts); err != nil {
			return err
		}
		logger.Info("report written", logging.FieldPath, cfg.Report.Path, "alerts", len(alerts))
	}

	if cfg.Storage.Enabled {
		run := model.Run{
			ID:            uuid.NewString(),
			StartedAt:     time.Now().UTC(),
			Events:        len(candidates),
			Alerts:        len(alerts),
			Threshold:     detection.FailureThreshold,
			WindowMinutes: detection.TimeWindowMinutes,
		}
		if err := persistRun(ctx, cfg.Storage, run, alerts, logger); err != nil {
			return err
		}
	}
	return nil
}

func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, opts *analyzeOptions) error {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Detection.FailureThreshold = opts.threshold
	}
	if flags.Changed("window") {
		cfg.Detection.TimeWindowMinutes = opts.window
	}
	if flags.Changed("workers") {
		cfg.Detection.Workers = opts.workers
	}
	if flags.Changed("report") {
		cfg.Report.Path = opts.report
	}
	if flags.Changed("output") {
		format := strings.ToLower(strings.TrimSpace(opts.output))
		if format != "text" && format != "json" {
			return fmt.Errorf("--output must be text or json, got %q", opts.output)
		}
		cfg.Report.Format = format
	}
	return nil
}

func persistRun(ctx context.Context, cfg config.StorageConfig, run model.Run, alerts []model.Alert, logger *slog.Logger) error {
	store, err := storage.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.Record(ctx, run, alerts); err != nil {
		return err
	}
	logger.Info("run stored", logging.FieldRunID, run.ID, "driver", cfg.Driver)
	return nil
}
