package alerting

import (
	"context"

	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
)

// LogAction writes fired alerts to the log at warn level.
type LogAction struct {
	log logger.Logger
}

// NewLogAction creates a LogAction.
func NewLogAction(log logger.Logger) *LogAction {
	if log == nil {
		log = logger.Global()
	}
	return &LogAction{log: log}
}

// Send implements Action.
func (a *LogAction) Send(_ context.Context, s metric.Sample, def *Definition, destination string) error {
	a.log.Warn(s.String()+" triggered "+def.Text,
		logger.Int64("alert_id", def.AlertID),
		logger.String("destination", destination))
	return nil
}
