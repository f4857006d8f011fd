package alerting

import (
	"context"
	"time"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/notification"
	"github.com/metrink/metrink-go/internal/observability"
)

// serviceMailer lazily resolves the notification service so alerting does
// not depend on initialization order.
type serviceMailer struct{}

func (serviceMailer) Send(ctx context.Context, m notification.Mail) error {
	svc := notification.GetService()
	if svc == nil {
		return errors.Newf("mail transport is not configured").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return svc.Send(ctx, m)
}

// Dependencies are the stores and settings the alerting subsystem runs on.
type Dependencies struct {
	Settings    conf.AlertingSettings
	UseHTML     bool
	Location    *time.Location
	Definitions DefinitionSource
	Actions     repository.ActionRepository
	History     repository.AlertHistoryRepository
	// Mailer overrides the global notification service.
	Mailer notification.Mailer
	// Listener, when set, sees every alert the dispatch worker picks up.
	Listener FiredListener
	Log      logger.Logger
	Metrics  *observability.Metrics
}

// System is the wired alerting subsystem.
type System struct {
	Registry   *Registry
	Engine     *Engine
	Poller     *Poller
	Queue      *DispatchQueue
	Dispatcher *Dispatcher
	Factory    *ActionFactory
	Lookup     *CachedActionLookup
}

// Initialize wires the registry, engine, dispatch path and poller, then runs
// one poll so definitions are live before the first sample arrives. A failed
// first poll is logged; the scheduler retries it.
func Initialize(ctx context.Context, deps Dependencies) (*System, error) {
	if deps.Definitions == nil || deps.Actions == nil {
		return nil, errors.Newf("alerting requires definition and action stores").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := deps.Log
	if log == nil {
		log = logger.Global()
	}
	log = log.Module("alerting")

	mailer := deps.Mailer
	if mailer == nil {
		mailer = serviceMailer{}
	}

	factory := NewActionFactory(ActionDeps{
		Mailer:       mailer,
		Log:          log,
		GraphBaseURL: deps.Settings.GraphBaseURL,
		UseHTML:      deps.UseHTML,
		Location:     deps.Location,
	})
	RegisterDefaultActions(factory)

	lookup := NewCachedActionLookup(deps.Actions, deps.Settings.ActionCacheTTL.Std())
	dispatcher := NewDispatcher(lookup, factory, deps.History, log, deps.Metrics)
	if deps.Listener != nil {
		dispatcher.SetListener(deps.Listener)
	}
	queue := NewDispatchQueue(dispatcher.Dispatch, deps.Settings.DispatchBuffer, deps.Settings.DispatchRate, log, deps.Metrics)

	registry := NewRegistry()
	engine := NewEngine(registry, queue, log, deps.Metrics)
	poller := NewPoller(deps.Definitions, NewQueryCompiler(), registry, log, deps.Metrics)

	if err := poller.Poll(ctx); err != nil {
		log.Warn("initial alert definition load failed", logger.Error(err))
	}

	log.Info("alerting engine initialized",
		logger.Int("definitions_loaded", registry.Len()),
		logger.Any("action_types", factory.Types()))

	return &System{
		Registry:   registry,
		Engine:     engine,
		Poller:     poller,
		Queue:      queue,
		Dispatcher: dispatcher,
		Factory:    factory,
		Lookup:     lookup,
	}, nil
}

// Stop drains the dispatch queue.
func (s *System) Stop(ctx context.Context) error {
	return s.Queue.Stop(ctx)
}
