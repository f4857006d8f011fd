// Package api hosts the HTTP server: the /api/v1 controller, Prometheus
// scraping and shared middleware.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/metrink/metrink-go/internal/api/v1"
	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
)

// Server wraps the echo instance and its controllers.
type Server struct {
	echo       *echo.Echo
	controller *v1.Controller
	log        logger.Logger
	listen     string
}

// NewServer builds a server from settings. deps.Metrics, when set, is also
// exposed at GET /metrics. An unparsable body limit is a configuration error.
func NewServer(settings conf.HTTPSettings, deps v1.Dependencies) (*Server, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}
	log = log.Module("http")

	limit, err := settings.BodyLimitBytes()
	if err != nil {
		return nil, errors.New(err).
			Component("http").
			Category(errors.CategoryConfiguration).
			Context("body_limit", settings.BodyLimit).
			Build()
	}
	deps.MaxBodyBytes = limit

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.FormatInt(limit, 10) + "B"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	}))

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}
	deps.Logger = log

	return &Server{
		echo:       e,
		controller: v1.New(e, deps),
		log:        log,
		listen:     settings.Listen,
	}, nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("listen", s.listen))
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("http").
			Category(errors.CategorySystem).
			Context("listen", s.listen).
			Build()
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
