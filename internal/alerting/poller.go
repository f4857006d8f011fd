package alerting

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/observability"
)

// DefinitionSource is the slice of the definition store the poller reads.
// Rows come back ordered by modification time ascending.
type DefinitionSource interface {
	ModifiedSince(ctx context.Context, watermark int64) ([]entities.AlertDefinition, error)
}

// Poller keeps the registry in step with the definition store using a
// modification-time watermark.
type Poller struct {
	source    DefinitionSource
	compiler  Compiler
	registry  *Registry
	log       logger.Logger
	metrics   *observability.Metrics
	watermark atomic.Int64 // epoch ms of the newest row applied
}

// NewPoller creates a Poller starting at the zero watermark.
func NewPoller(source DefinitionSource, compiler Compiler, registry *Registry, log logger.Logger, metrics *observability.Metrics) *Poller {
	if log == nil {
		log = logger.Global()
	}
	return &Poller{
		source:   source,
		compiler: compiler,
		registry: registry,
		log:      log.Module("poller"),
		metrics:  metrics,
	}
}

// Watermark returns the modification time of the newest row applied.
func (p *Poller) Watermark() int64 {
	return p.watermark.Load()
}

// Poll applies one cycle of changes. A read failure leaves the watermark in
// place and is returned; compile failures only skip their row.
func (p *Poller) Poll(ctx context.Context) error {
	since := p.watermark.Load()
	rows, err := p.source.ModifiedSince(ctx, since)
	if err != nil {
		return errors.New(err).
			Component("alerting").
			Category(errors.CategoryStorage).
			Context("operation", "poll_definitions").
			Context("watermark", since).
			Build()
	}
	if len(rows) == 0 {
		return nil
	}

	var (
		compiled = make([]*Definition, 0, len(rows))
		removed  int
		failed   int
	)
	for i := range rows {
		row := &rows[i]
		alertID := int64(row.ID)

		if !row.Enabled {
			if p.registry.Remove(alertID) {
				removed++
			} else {
				p.log.Warn("disabled alert was not active", logger.Int64("alert_id", alertID))
			}
			continue
		}

		def, err := p.compiler.Compile(alertID, int64(row.OwnerID), row.Definition)
		if err != nil {
			failed++
			p.log.Error("failed to compile alert definition",
				logger.Int64("alert_id", alertID),
				logger.Error(err))
			continue
		}
		compiled = append(compiled, def)
	}

	p.registry.Upsert(compiled)

	last := rows[len(rows)-1].ModifiedAt
	if last > since {
		p.watermark.Store(last)
		p.metrics.SetWatermark(time.UnixMilli(last))
	}
	p.metrics.SetActiveDefinitions(p.registry.Len())

	p.log.Info("alert definitions synchronized",
		logger.Int("rows", len(rows)),
		logger.Int("upserted", len(compiled)),
		logger.Int("removed", removed),
		logger.Int("failed", failed),
		logger.Int64("watermark", p.watermark.Load()))
	return nil
}
