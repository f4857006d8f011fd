// Package telemetry forwards built errors to Sentry when a DSN is configured.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
)

// flushTimeout bounds how long Close waits for buffered events.
const flushTimeout = 2 * time.Second

// Init configures the Sentry client and installs the error reporter. It
// returns false without error when no DSN is set.
func Init(settings conf.SentrySettings, release string, log logger.Logger) (bool, error) {
	if settings.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Environment:      settings.Environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	errors.SetReporter(Report)
	if log != nil {
		log.Info("error telemetry enabled", logger.String("environment", settings.Environment))
	}
	return true, nil
}

// Report sends err to Sentry unless it is caused by user input.
func Report(err *errors.EnhancedError) {
	if !shouldReport(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", err.Component())
		scope.SetTag("category", string(err.Category()))
		if ctx := err.Context(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		sentry.CaptureException(err)
	})
}

// shouldReport filters out errors that describe bad input rather than a
// fault in the service.
func shouldReport(err *errors.EnhancedError) bool {
	if err == nil {
		return false
	}
	switch err.Category() {
	case errors.CategoryValidation, errors.CategoryCompile:
		return false
	}
	return true
}

// Close flushes buffered events and detaches the reporter.
func Close() {
	errors.SetReporter(nil)
	sentry.Flush(flushTimeout)
}
