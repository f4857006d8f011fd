package alerting

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

const (
	// saveHistoryTimeout is the context deadline for persisting alert history.
	saveHistoryTimeout = 3 * time.Second
	// defaultActionCacheTTL applies when the lookup is created with a zero TTL.
	defaultActionCacheTTL = 5 * time.Minute
)

// ActionConfig selects and parameterizes an Action.
type ActionConfig struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

// ActionLookup resolves an action name to its configuration.
type ActionLookup interface {
	Lookup(ctx context.Context, name string) (ActionConfig, error)
}

// CachedActionLookup reads action configuration from the action store and
// keeps it for a TTL.
type CachedActionLookup struct {
	repo  repository.ActionRepository
	cache *cache.Cache
}

// NewCachedActionLookup creates a lookup over repo.
func NewCachedActionLookup(repo repository.ActionRepository, ttl time.Duration) *CachedActionLookup {
	if ttl <= 0 {
		ttl = defaultActionCacheTTL
	}
	return &CachedActionLookup{repo: repo, cache: cache.New(ttl, 2*ttl)}
}

// Lookup implements ActionLookup. An unknown name is a configuration error.
func (l *CachedActionLookup) Lookup(ctx context.Context, name string) (ActionConfig, error) {
	if cached, ok := l.cache.Get(name); ok {
		return cached.(ActionConfig), nil
	}
	row, err := l.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			return ActionConfig{}, errors.Newf("action %q is not defined", name).
				Component("alerting").
				Category(errors.CategoryConfiguration).
				Context("action", name).
				Build()
		}
		return ActionConfig{}, err
	}
	cfg := ActionConfig{Name: row.Name, Type: row.Type, Destination: row.Value}
	l.cache.Set(name, cfg, cache.DefaultExpiration)
	return cfg, nil
}

// Invalidate drops a cached entry after the action row changed.
func (l *CachedActionLookup) Invalidate(name string) {
	l.cache.Delete(name)
}

// FiredListener observes fired alerts on the dispatch worker. It must not
// block.
type FiredListener interface {
	AlertFired(job DispatchJob)
}

// Dispatcher turns a fired alert into a history record and one delivery.
type Dispatcher struct {
	lookup   ActionLookup
	factory  *ActionFactory
	history  repository.AlertHistoryRepository
	listener FiredListener
	log      logger.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a Dispatcher. history may be nil.
func NewDispatcher(lookup ActionLookup, factory *ActionFactory, history repository.AlertHistoryRepository, log logger.Logger, metrics *observability.Metrics) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	return &Dispatcher{
		lookup:  lookup,
		factory: factory,
		history: history,
		log:     log.Module("dispatcher"),
		metrics: metrics,
	}
}

// SetListener installs l to be told about every dispatched alert.
func (d *Dispatcher) SetListener(l FiredListener) {
	d.listener = l
}

// Dispatch implements DispatchFunc. Configuration and delivery failures are
// logged and returned; they never reset the episode.
func (d *Dispatcher) Dispatch(ctx context.Context, job DispatchJob) error {
	def := job.Definition
	log := d.log.With(
		logger.String("job_id", job.ID),
		logger.Int64("alert_id", def.AlertID),
		logger.String("identity", job.Sample.Identity.String()))

	d.saveHistory(job)
	if d.listener != nil {
		d.listener.AlertFired(job)
	}

	if def.ActionName == "" {
		err := errors.Newf("alert has no action").
			Component("alerting").
			Category(errors.CategoryConfiguration).
			Context("alert_id", def.AlertID).
			Build()
		log.Error("alert skipped", logger.Error(err))
		d.metrics.RecordFired("none")
		return err
	}

	cfg, err := d.lookup.Lookup(ctx, def.ActionName)
	if err != nil {
		log.Error("failed to resolve alert action",
			logger.String("action", def.ActionName),
			logger.Error(err))
		d.metrics.RecordFired("unresolved")
		return err
	}
	d.metrics.RecordFired(cfg.Type)

	action, err := d.factory.Create(cfg.Type)
	if err != nil {
		log.Error("alert skipped",
			logger.String("action", cfg.Name),
			logger.Error(err))
		return err
	}

	if err := action.Send(ctx, job.Sample, def, cfg.Destination); err != nil {
		if !errors.IsCategory(err, errors.CategoryDelivery) && !errors.IsCategory(err, errors.CategoryConfiguration) {
			err = errors.New(err).
				Component("alerting").
				Category(errors.CategoryDelivery).
				Context("action_type", cfg.Type).
				Build()
		}
		d.metrics.RecordDeliveryFailure(cfg.Type)
		log.Error("alert delivery failed",
			logger.String("action", cfg.Name),
			logger.String("action_type", cfg.Type),
			logger.Error(err))
		return err
	}

	log.Info("alert delivered",
		logger.String("action", cfg.Name),
		logger.String("action_type", cfg.Type))
	return nil
}

func (d *Dispatcher) saveHistory(job DispatchJob) {
	if d.history == nil {
		return
	}
	def := job.Definition
	record := historyRecord(def, job.Sample, job.FiredAt)
	saveCtx, cancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer cancel()
	if err := d.history.Save(saveCtx, record); err != nil {
		d.log.Error("failed to save alert history",
			logger.Int64("alert_id", def.AlertID),
			logger.Error(err))
	}
}

func historyRecord(def *Definition, s metric.Sample, firedAt time.Time) *entities.AlertHistory {
	return &entities.AlertHistory{
		AlertID:    uint(def.AlertID),
		OwnerID:    uint(def.OwnerID),
		FiredAt:    firedAt,
		Device:     s.Identity.Device,
		Group:      s.Identity.Group,
		Name:       s.Identity.Name,
		Value:      s.Value,
		SampleTime: s.Timestamp,
		ActionName: def.ActionName,
		Definition: def.Text,
	}
}
