package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentinelforge/internal/alerts"
	"sentinelforge/internal/api"
	"sentinelforge/internal/config"
	"sentinelforge/internal/ingest"
	"sentinelforge/internal/logging"
	"sentinelforge/internal/metrics"
	"sentinelforge/internal/model"
	"sentinelforge/internal/pipeline"
	"sentinelforge/internal/publish"
	"sentinelforge/internal/storage"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Detect brute-force activity over streamed events",
		Long: `Start the enabled ingest sources (file tail, TCP, REST, Kafka), batch the
events they deliver and run detection on every flush. Alerts are kept in
memory for the HTTP API and optionally stored and published to NATS.

The config file is polled and reloaded when it changes.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	var manager *config.Manager
	if cfgPath == "" {
		manager = config.NewStaticManager(config.DefaultConfig())
	} else {
		m, err := config.NewManager(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		manager = m
	}
	cfg := manager.Get()
	logger := logging.New(cmd.OutOrStdout(), cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return err
		}
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	opts := pipeline.Options{
		Logger:  logger,
		Sources: metrics.NewStore(cfg.Sources.StoreLimit),
		Alerts:  alerts.NewStore(cfg.Alerts.StoreLimit),
		Store:   store,
	}
	publisher, err := publish.Connect(cfg.NATS, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		opts.Publisher = publisher
		logger.Info("nats publishing enabled", "subject", publisher.Subject())
	}

	p, err := pipeline.New(manager, opts)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Parser.Timezone)
	if err != nil {
		return fmt.Errorf("parser.timezone: %w", err)
	}
	parser := ingest.NewParser(loc)
	events := make(chan model.Event, cfg.Ingest.ChannelBuffer)
	ingest.StartFileTail(ctx, manager, parser, events, logger)
	ingest.StartTCPStream(ctx, manager, parser, events, logger)
	ingest.StartREST(ctx, manager, parser, events, logger)
	ingest.StartKafka(ctx, manager, parser, events, logger)

	api.Start(ctx, api.NewServer(manager, opts.Sources, opts.Alerts, p, logger, Version))

	go manager.Watch(0, func(next *config.Config) {
		onReload(p, next, logger)
	}, func(err error) {
		logger.Error("config reload failed", logging.FieldError, err)
	}, ctx.Done())

	logger.Info("sentinelforge started",
		"flush_interval", cfg.Pipeline.FlushInterval.String(),
		"failure_threshold", cfg.Detection.FailureThreshold,
		"time_window_minutes", cfg.Detection.TimeWindowMinutes,
	)
	p.Run(ctx, events)
	logger.Info("sentinelforge stopped")
	return nil
}

// onReload applies a reloaded config. Ingest sources keep the settings they
// started with; detection and pipeline settings apply from the next flush.
func onReload(p *pipeline.Pipeline, next *config.Config, logger *slog.Logger) {
	if err := p.UpdateConfig(next); err != nil {
		logger.Error("config reload rejected", logging.FieldError, err)
		return
	}
	logger.Info("config reloaded",
		"failure_threshold", next.Detection.FailureThreshold,
		"time_window_minutes", next.Detection.TimeWindowMinutes,
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
