// Package app wires configuration, storage, the alerting subsystem, the
// HTTP and MQTT ingest surfaces and the background scheduler into one
// process.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/aggregation"
	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/api"
	v1 "github.com/metrink/metrink-go/internal/api/v1"
	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/datastore"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/ingest"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/notification"
	"github.com/metrink/metrink-go/internal/observability"
	"github.com/metrink/metrink-go/internal/scheduler"
	"github.com/metrink/metrink-go/internal/selfstats"
	"github.com/metrink/metrink-go/internal/stream"
	"github.com/metrink/metrink-go/internal/telemetry"
)

// Task names.
const (
	TaskCompaction     = "compaction"
	TaskDefinitionSync = "definition-sync"
	TaskRetentionPurge = "retention-purge"
	TaskSelfStats      = "self-stats"
)

const shutdownTimeout = 30 * time.Second

// App is a fully wired metrink process.
type App struct {
	Settings *conf.Settings
	Log      logger.Logger
	Metrics  *observability.Metrics

	DB          *gorm.DB
	Samples     repository.SampleRepository
	Catalog     repository.CatalogRepository
	Definitions repository.AlertDefinitionRepository
	Actions     repository.ActionRepository
	History     repository.AlertHistoryRepository

	Buffer    *aggregation.Buffer
	Alerting  *alerting.System
	Scheduler *scheduler.Scheduler
	HTTP      *api.Server
	MQTT      *ingest.Subscriber
	Stream    *stream.Hub

	version   string
	logOutput io.Closer
	closeOnce sync.Once
	now       func() time.Time
}

// NewLogger builds the process logger from settings and installs it as the
// global logger. The returned closer releases the log file.
func NewLogger(settings conf.LogSettings, loc *time.Location) (logger.Logger, io.Closer, error) {
	w, err := logger.NewFileWriter(logger.FileConfig{
		Path:       settings.Path,
		MaxSizeMB:  settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		MaxAgeDays: settings.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return nil, nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("path", settings.Path).
			Build()
	}
	log := logger.NewSlogLogger(w, logger.ParseLevel(settings.Level), loc)
	logger.SetGlobal(log)
	return log, w, nil
}

// New opens storage and wires every component. Nothing runs until Run.
func New(ctx context.Context, settings *conf.Settings, version string) (*App, error) {
	log, closer, err := NewLogger(settings.Log, settings.Location())
	if err != nil {
		return nil, err
	}
	a := &App{Settings: settings, Log: log, version: version, logOutput: closer, now: time.Now}

	if err := a.init(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	s := a.Settings

	if enabled, err := telemetry.Init(s.Sentry, a.version, a.Log); err != nil {
		a.Log.Warn("error reporting disabled", logger.Error(err))
	} else if enabled {
		a.Log.Info("error reporting enabled", logger.String("environment", s.Sentry.Environment))
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	a.Metrics = metrics

	db, err := datastore.Open(s.Database, a.Log)
	if err != nil {
		return err
	}
	a.DB = db
	a.Samples = repository.NewSampleRepository(db)
	a.Catalog = repository.NewCatalogRepository(db)
	a.Definitions = repository.NewAlertDefinitionRepository(db)
	a.Actions = repository.NewActionRepository(db)
	a.History = repository.NewAlertHistoryRepository(db)
	if err := a.Samples.Init(ctx); err != nil {
		return err
	}

	a.Buffer = aggregation.NewBuffer(a.Samples, a.Log, a.Metrics)

	if mailer, err := notification.NewSMTPMailer(s.SMTP); err != nil {
		a.Log.Warn("mail delivery disabled", logger.Error(err))
	} else {
		notification.Initialize(mailer, a.Log)
	}

	a.Stream = stream.NewHub(a.Log, a.Metrics)
	a.Alerting, err = alerting.Initialize(ctx, alerting.Dependencies{
		Settings:    s.Alerting,
		UseHTML:     s.SMTP.UseHTML,
		Location:    s.Location(),
		Definitions: a.Definitions,
		Actions:     a.Actions,
		History:     a.History,
		Listener:    a.Stream,
		Log:         a.Log,
		Metrics:     a.Metrics,
	})
	if err != nil {
		return err
	}

	if err := a.initScheduler(); err != nil {
		return err
	}

	if s.HTTP.Enabled {
		a.HTTP, err = api.NewServer(s.HTTP, v1.Dependencies{
			Buffer:         a.Buffer,
			Engine:         a.Alerting.Engine,
			Registry:       a.Alerting.Registry,
			Factory:        a.Alerting.Factory,
			ActionCache:    a.Alerting.Lookup,
			Stream:         a.Stream,
			Samples:        a.Samples,
			Catalog:        a.Catalog,
			Definitions:    a.Definitions,
			Actions:        a.Actions,
			History:        a.History,
			BatchQuota:     s.Alerting.BatchQuota,
			ForecastPeriod: s.Forecast.Period,
			Version:        a.version,
			Metrics:        a.Metrics,
			Logger:         a.Log,
		})
		if err != nil {
			return err
		}
	}
	if s.MQTT.Enabled {
		a.MQTT = ingest.NewSubscriber(s.MQTT, a.Buffer, a.Alerting.Engine, a.Log, a.Metrics)
	}
	return nil
}

func (a *App) initScheduler() error {
	s := a.Settings
	a.Scheduler = scheduler.New(a.Log, a.Metrics)

	tasks := []scheduler.Task{
		{Name: TaskCompaction, Interval: s.Aggregation.Interval.Std(), Run: a.Buffer.Compact},
		{Name: TaskDefinitionSync, Interval: s.Alerting.SyncInterval.Std(), Run: a.Alerting.Poller.Poll},
		{Name: TaskRetentionPurge, Interval: s.Retention.Interval.Std(), Run: func(ctx context.Context) error {
			_, err := a.Purge(ctx)
			return err
		}},
	}
	if s.SelfStats.Enabled {
		collector := selfstats.NewCollector(s.SelfStats.Device, "", a.Buffer, a.Alerting.Engine, a.Log, a.Metrics)
		tasks = append(tasks, scheduler.Task{Name: TaskSelfStats, Interval: s.SelfStats.Interval.Std(), Run: collector.Collect})
	}
	for _, t := range tasks {
		if err := a.Scheduler.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// PurgeResult reports what a retention pass removed.
type PurgeResult struct {
	Samples int64
	History int64
}

// Purge deletes samples older than retention.days and alert history older
// than alerting.historyretentiondays. A zero day count keeps everything.
func (a *App) Purge(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	now := a.now()
	var errs []error

	if days := a.Settings.Retention.Days; days > 0 {
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
		n, err := a.Samples.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, err)
		}
		res.Samples = n
	}
	if days := a.Settings.Alerting.HistoryRetentionDays; days > 0 {
		n, err := a.History.DeleteBefore(ctx, now.Add(-time.Duration(days)*24*time.Hour))
		if err != nil {
			errs = append(errs, err)
		}
		res.History = n
	}

	if err := errors.Join(errs...); err != nil {
		return res, err
	}
	a.Log.Info("retention purge complete",
		logger.Int64("samples_deleted", res.Samples),
		logger.Int64("history_deleted", res.History))
	return res, nil
}

// Run starts the scheduler and the ingest surfaces and blocks until ctx is
// cancelled or a surface fails. Pending samples are compacted before Run
// returns.
func (a *App) Run(ctx context.Context) error {
	if a.MQTT != nil {
		if err := a.MQTT.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Scheduler.Run(gctx) })
	if a.HTTP != nil {
		g.Go(a.HTTP.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return a.HTTP.Shutdown(shutdownCtx)
		})
	}

	a.Log.Info("metrink started",
		logger.String("version", a.version),
		logger.Any("tasks", a.Scheduler.Tasks()))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if a.MQTT != nil {
		a.MQTT.Stop()
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if ferr := a.Buffer.Compact(flushCtx); ferr != nil {
		a.Log.Error("final compaction failed", logger.Error(ferr))
	}
	return err
}

// Close drains the dispatch queue, disconnects stream clients and releases
// storage, telemetry and the log file. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.Alerting != nil {
			stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			if err := a.Alerting.Stop(stopCtx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
		if a.Stream != nil {
			a.Stream.Close()
		}
		if a.Samples != nil {
			if err := a.Samples.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		telemetry.Close()
		if a.logOutput != nil {
			if err := a.logOutput.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
