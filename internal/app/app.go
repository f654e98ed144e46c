package app

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"IngestionAlerter/internal/classify"
	"IngestionAlerter/internal/config"
	"IngestionAlerter/internal/fetch"
	"IngestionAlerter/internal/infrastructure/aep"
	"IngestionAlerter/internal/infrastructure/events"
	"IngestionAlerter/internal/infrastructure/gdrive"
	"IngestionAlerter/internal/infrastructure/googlechat"
	"IngestionAlerter/internal/infrastructure/scheduler"
	"IngestionAlerter/internal/infrastructure/sheets"
	"IngestionAlerter/internal/infrastructure/storage"
	"IngestionAlerter/internal/logging"
	"IngestionAlerter/internal/normalize"
	"IngestionAlerter/internal/ports"
	"IngestionAlerter/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	chat     *googlechat.Notifier
	db       *sql.DB
}

// New builds a runnable application instance from resolved configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := fetch.NewRegistry()
	for name, src := range cfg.Sources {
		switch name {
		case "aep":
			registry.Register(aep.New(src, baseLogger.With("component", "source.aep")))
		case "events":
			registry.Register(events.New(src))
		default:
			baseLogger.Warn("unknown source ignored", "source", name)
		}
	}

	app := &Application{cfg: cfg, logger: baseLogger}

	var sinks []ports.ReportSink
	if cfg.Sinks.Chat.WebhookURL != "" {
		app.chat = googlechat.New(cfg.Sinks.Chat.WebhookURL)
		sinks = append(sinks, app.chat)
	}
	if cfg.Sinks.Sheets.SpreadsheetID != "" {
		sheetsSink, err := sheets.New(ctx, cfg.Sinks.Sheets)
		if err != nil {
			return nil, errors.Wrap(err, "build sheets sink")
		}
		sinks = append(sinks, sheetsSink)
	}
	if cfg.Sinks.Drive.FolderID != "" {
		driveSink, err := gdrive.New(ctx, cfg.Sinks.Drive)
		if err != nil {
			return nil, errors.Wrap(err, "build drive sink")
		}
		sinks = append(sinks, driveSink)
	}

	var runs ports.RunRepository
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open run database")
		}
		app.db = db
		runs = storage.NewPostgresRepository(db)
	}

	app.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Registry:   registry,
		Datasets:   cfg.Datasets,
		Normalizer: normalize.New(baseLogger.With("component", "normalizer")),
		Classifier: classify.New(classify.Thresholds{
			Degraded: cfg.Pipeline.Thresholds.DegradedValue(),
			Critical: cfg.Pipeline.Thresholds.CriticalValue(),
		}, cfg.Pipeline.MaxTopErrors),
		Sinks:      sinks,
		Runs:       runs,
		WindowSize: cfg.Pipeline.WindowSize.Std(),
		RunTimeout: cfg.Pipeline.RunTimeout.Std(),
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return app, nil
}

// Run executes a single pipeline pass or the recurring schedule depending
// on runMode.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if a.cfg.RunMode == "scheduled" {
		return a.runScheduled(ctx)
	}

	now := time.Now().In(a.cfg.Scheduler.Location())
	if err := a.pipeline.Run(ctx, now); err != nil {
		a.notifyRunFailure(ctx, err)
		return err
	}
	return nil
}

func (a *Application) runScheduled(ctx context.Context) error {
	driver := scheduler.NewTickerScheduler(a.cfg.Scheduler.Interval.Std())
	sched := usecase.NewScheduler(driver, a.pipeline, func(ctx context.Context, err error) {
		a.logger.Error("scheduled run failed", "error", err)
		a.notifyRunFailure(ctx, err)
	})

	if err := sched.Start(ctx); err != nil {
		return errors.Wrap(err, "start scheduler")
	}

	<-ctx.Done()
	return sched.Stop(context.Background())
}

// notifyRunFailure keeps a failed run as visible as a failing dataset by
// posting an error card. Failures in this last resort are only logged.
func (a *Application) notifyRunFailure(ctx context.Context, runErr error) {
	if a.chat == nil {
		return
	}
	if err := a.chat.DeliverRunFailure(ctx, runErr); err != nil {
		a.logger.Error("failed to post run failure card", "error", err)
	}
}

func (a *Application) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close run database", "error", err)
		}
	}
}
