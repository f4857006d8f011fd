package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
)

const (
	maxHistoryLimit     = 200
	defaultHistoryLimit = 50
	maxActiveQuota      = 1000
)

// DefinitionRequest is the body for creating or replacing an alert.
type DefinitionRequest struct {
	OwnerID    uint   `json:"owner_id"`
	Definition string `json:"definition"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

// initAlertRoutes registers alert endpoints.
func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")

	alerts.GET("/schema", c.GetAlertSchema)
	alerts.GET("/active", c.ListActiveAlerts)
	alerts.GET("/history", c.ListAlertHistory)
	alerts.GET("/stream", c.StreamAlerts)

	alerts.POST("/definitions", c.CreateDefinition)
	alerts.GET("/definitions/:id", c.GetDefinition)
	alerts.PUT("/definitions/:id", c.UpdateDefinition)
	alerts.PATCH("/definitions/:id/toggle", c.ToggleDefinition)
	alerts.DELETE("/definitions/:id", c.DeleteDefinition)
}

// GetAlertSchema describes the alert language.
func (c *Controller) GetAlertSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, alerting.GetSchema(c.deps.Factory))
}

// ListActiveAlerts returns the next fairness-bounded batch of live
// definitions. Repeated calls sweep the whole active set.
func (c *Controller) ListActiveAlerts(ctx echo.Context) error {
	if c.deps.Registry == nil {
		return serviceUnavailable(ctx, "alert registry")
	}
	fallback := c.deps.BatchQuota
	if fallback <= 0 {
		fallback = 100
	}
	quota, err := queryInt(ctx, "quota", fallback)
	if err != nil || quota <= 0 {
		return badRequest(ctx, "Invalid quota")
	}
	quota = min(quota, maxActiveQuota)

	batch := c.deps.Registry.ActiveBatch(quota)
	return ctx.JSON(http.StatusOK, map[string]any{
		"definitions": batch,
		"count":       len(batch),
		"total":       c.deps.Registry.Len(),
	})
}

// ListAlertHistory returns paginated alert firing history.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	if c.deps.History == nil {
		return serviceUnavailable(ctx, "alert history")
	}

	filter := repository.AlertHistoryFilter{Limit: defaultHistoryLimit}
	if raw := ctx.QueryParam("alert_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(ctx, "Invalid alert_id")
		}
		filter.AlertID = uint(v)
	}
	if raw := ctx.QueryParam("owner_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(ctx, "Invalid owner_id")
		}
		filter.OwnerID = uint(v)
	}
	if v, err := queryInt(ctx, "limit", defaultHistoryLimit); err == nil && v > 0 {
		filter.Limit = min(v, maxHistoryLimit)
	}
	if v, err := queryInt(ctx, "offset", 0); err == nil && v >= 0 {
		filter.Offset = v
	}

	items, total, err := c.deps.History.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert history", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// validateDefinition compiles the text so malformed alerts never reach the store.
func (c *Controller) validateDefinition(id uint, req *DefinitionRequest) error {
	if req.Definition == "" {
		return errors.Newf("definition is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	_, err := c.deps.Compiler.Compile(int64(id), int64(req.OwnerID), req.Definition)
	return err
}

// CreateDefinition stores a new alert. It goes live on the next sync.
func (c *Controller) CreateDefinition(ctx echo.Context) error {
	if c.deps.Definitions == nil {
		return serviceUnavailable(ctx, "definition store")
	}
	var req DefinitionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if err := c.validateDefinition(0, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid alert definition", statusFor(err))
	}

	def := entities.AlertDefinition{OwnerID: req.OwnerID, Definition: req.Definition, Enabled: true}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	if err := c.deps.Definitions.Create(ctx.Request().Context(), &def); err != nil {
		return c.HandleError(ctx, err, "Failed to create alert definition", http.StatusInternalServerError)
	}

	c.log.Info("alert definition created",
		logger.Uint64("id", uint64(def.ID)),
		logger.Uint64("owner_id", uint64(def.OwnerID)))
	return ctx.JSON(http.StatusCreated, def)
}

// GetDefinition returns one stored alert.
func (c *Controller) GetDefinition(ctx echo.Context) error {
	if c.deps.Definitions == nil {
		return serviceUnavailable(ctx, "definition store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid definition ID")
	}
	def, err := c.deps.Definitions.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertDefinitionNotFound) {
			return notFound(ctx, "Alert definition not found")
		}
		return c.HandleError(ctx, err, "Failed to get alert definition", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, def)
}

// UpdateDefinition replaces an alert wholesale; its episode state resets
// when the change is synchronized.
func (c *Controller) UpdateDefinition(ctx echo.Context) error {
	if c.deps.Definitions == nil {
		return serviceUnavailable(ctx, "definition store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid definition ID")
	}
	var req DefinitionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if err := c.validateDefinition(id, &req); err != nil {
		return c.HandleError(ctx, err, "Invalid alert definition", statusFor(err))
	}

	existing, err := c.deps.Definitions.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertDefinitionNotFound) {
			return notFound(ctx, "Alert definition not found")
		}
		return c.HandleError(ctx, err, "Failed to get alert definition", http.StatusInternalServerError)
	}
	existing.OwnerID = req.OwnerID
	existing.Definition = req.Definition
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	if err := c.deps.Definitions.Update(ctx.Request().Context(), existing); err != nil {
		return c.HandleError(ctx, err, "Failed to update alert definition", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, existing)
}

// ToggleDefinition enables or disables an alert.
func (c *Controller) ToggleDefinition(ctx echo.Context) error {
	if c.deps.Definitions == nil {
		return serviceUnavailable(ctx, "definition store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid definition ID")
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if err := c.deps.Definitions.SetEnabled(ctx.Request().Context(), id, body.Enabled); err != nil {
		if errors.Is(err, repository.ErrAlertDefinitionNotFound) {
			return notFound(ctx, "Alert definition not found")
		}
		return c.HandleError(ctx, err, "Failed to toggle alert definition", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "enabled": body.Enabled})
}

// DeleteDefinition removes an alert from the store and from the live
// registry, since the sync poller never sees deleted rows.
func (c *Controller) DeleteDefinition(ctx echo.Context) error {
	if c.deps.Definitions == nil {
		return serviceUnavailable(ctx, "definition store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid definition ID")
	}
	if err := c.deps.Definitions.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrAlertDefinitionNotFound) {
			return notFound(ctx, "Alert definition not found")
		}
		return c.HandleError(ctx, err, "Failed to delete alert definition", http.StatusInternalServerError)
	}
	if c.deps.Registry != nil {
		c.deps.Registry.Remove(int64(id))
	}
	return ctx.NoContent(http.StatusNoContent)
}
