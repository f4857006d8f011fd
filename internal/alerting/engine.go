package alerting

import (
	"fmt"

	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

// Engine evaluates incoming samples against the registry and hands fired
// alerts to the dispatch queue. It performs no I/O.
type Engine struct {
	registry *Registry
	queue    Enqueuer
	log      logger.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an Engine.
func NewEngine(registry *Registry, queue Enqueuer, log logger.Logger, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = logger.Global()
	}
	return &Engine{
		registry: registry,
		queue:    queue,
		log:      log.Module("engine"),
		metrics:  metrics,
	}
}

// ProcessSamples evaluates every sample against its matching definitions and
// returns the number of alerts that fired. A failing definition is logged
// and skipped.
func (e *Engine) ProcessSamples(samples []metric.Sample) int {
	fired := 0
	for i := range samples {
		s := samples[i]
		for _, def := range e.registry.Match(s.Identity) {
			if e.evaluate(def, s) {
				fired++
			}
		}
	}
	return fired
}

// evaluate runs one definition against one sample. The sample time is the
// clock for sustain so replayed batches behave like live ones. def may have
// been replaced since Match returned it; the episode tracker drops its
// result in that case.
func (e *Engine) evaluate(def *Definition, s metric.Sample) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("alert evaluation panicked",
				logger.Int64("alert_id", def.AlertID),
				logger.String("identity", s.Identity.String()),
				logger.String("panic", fmt.Sprint(r)))
			fired = false
		}
	}()

	satisfied, err := def.Condition.Evaluate(s)
	if err != nil {
		e.log.Warn("alert evaluation failed",
			logger.Int64("alert_id", def.AlertID),
			logger.String("identity", s.Identity.String()),
			logger.Error(err))
		return false
	}

	if !e.registry.Episodes().Observe(def.AlertID, def.Generation, satisfied, s.Time(), def.Condition.Sustain()) {
		return false
	}

	e.log.Info("alert fired",
		logger.Int64("alert_id", def.AlertID),
		logger.Int64("owner_id", def.OwnerID),
		logger.String("identity", s.Identity.String()),
		logger.Float64("value", s.Value))
	if e.queue != nil {
		e.queue.Enqueue(def, s)
	}
	return true
}
