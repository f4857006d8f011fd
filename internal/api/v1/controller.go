// Package api implements the /api/v1 HTTP endpoints: metric ingest, alert
// administration, alert history and forecasting.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
	"github.com/metrink/metrink-go/internal/stream"
)

// Ingestor accepts raw samples for aggregation.
type Ingestor interface {
	Enqueue(samples []metric.Sample)
	Pending() int64
}

// SampleProcessor evaluates samples against live alerts.
type SampleProcessor interface {
	ProcessSamples(samples []metric.Sample) int
}

// ActionCache is invalidated when an action row changes.
type ActionCache interface {
	Invalidate(name string)
}

// Dependencies are the collaborators the controller serves from. Nil
// stores disable the routes that need them.
type Dependencies struct {
	Buffer      Ingestor
	Engine      SampleProcessor
	Registry    *alerting.Registry
	Factory     *alerting.ActionFactory
	Compiler    alerting.Compiler
	ActionCache ActionCache
	Stream      *stream.Hub

	Samples     repository.SampleRepository
	Catalog     repository.CatalogRepository
	Definitions repository.AlertDefinitionRepository
	Actions     repository.ActionRepository
	History     repository.AlertHistoryRepository

	BatchQuota     int
	ForecastPeriod int
	Version        string
	// MaxBodyBytes caps ingest payloads; zero uses defaultMaxBodyBytes.
	MaxBodyBytes int64

	Metrics *observability.Metrics
	Logger  logger.Logger
}

// Controller owns the /api/v1 route group.
type Controller struct {
	Group *echo.Group
	deps  Dependencies
	log   logger.Logger
	now   func() time.Time
}

// New registers all /api/v1 routes on e.
func New(e *echo.Echo, deps Dependencies) *Controller {
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}
	if deps.Compiler == nil {
		deps.Compiler = alerting.NewQueryCompiler()
	}
	c := &Controller{
		Group: e.Group("/api/v1"),
		deps:  deps,
		log:   log.Module("api"),
		now:   time.Now,
	}
	c.initHealthRoutes()
	c.initMetricRoutes()
	c.initAlertRoutes()
	c.initActionRoutes()
	c.initForecastRoutes()
	return c
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HandleError logs err and writes a JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code >= http.StatusInternalServerError {
		c.log.Error(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
	} else {
		c.log.Debug(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
	}
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	return ctx.JSON(code, resp)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	category, _ := errors.CategoryOf(err)
	switch category {
	case errors.CategoryValidation, errors.CategoryCompile, errors.CategoryConfiguration:
		return http.StatusBadRequest
	case errors.CategoryStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func notFound(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusNotFound, ErrorResponse{Error: message})
}

func serviceUnavailable(ctx echo.Context, what string) error {
	return ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: what + " is not available"})
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// queryInt reads an optional integer query parameter.
func queryInt(ctx echo.Context, name string, fallback int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// queryInt64 reads an optional int64 query parameter.
func queryInt64(ctx echo.Context, name string, fallback int64) (int64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
