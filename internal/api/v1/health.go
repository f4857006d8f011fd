package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthResponse reports process state for health checks.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Pending     int64  `json:"pending_samples"`
	Definitions int    `json:"active_definitions"`
}

func (c *Controller) initHealthRoutes() {
	c.Group.GET("/health", c.GetHealth)
}

// GetHealth returns liveness and queue depth.
func (c *Controller) GetHealth(ctx echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: c.deps.Version}
	if c.deps.Buffer != nil {
		resp.Pending = c.deps.Buffer.Pending()
	}
	if c.deps.Registry != nil {
		resp.Definitions = c.deps.Registry.Len()
	}
	return ctx.JSON(http.StatusOK, resp)
}
