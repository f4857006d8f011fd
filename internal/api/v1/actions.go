package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
)

// ActionRequest is the body for creating or replacing an action.
type ActionRequest struct {
	OwnerID uint   `json:"owner_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Value   string `json:"value"`
}

func (c *Controller) initActionRoutes() {
	actions := c.Group.Group("/actions")
	actions.GET("", c.ListActions)
	actions.POST("", c.CreateAction)
	actions.PUT("/:id", c.UpdateAction)
	actions.DELETE("/:id", c.DeleteAction)
}

func (c *Controller) validateAction(req *ActionRequest) error {
	if req.Name == "" || req.Type == "" {
		return errors.Newf("action name and type are required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	if c.deps.Factory != nil && !slices.Contains(c.deps.Factory.Types(), req.Type) {
		return errors.Newf("unknown action type %q", req.Type).
			Component("api").
			Category(errors.CategoryValidation).
			Context("known", c.deps.Factory.Types()).
			Build()
	}
	return nil
}

// ListActions lists actions, optionally for one owner.
func (c *Controller) ListActions(ctx echo.Context) error {
	if c.deps.Actions == nil {
		return serviceUnavailable(ctx, "action store")
	}
	var owner uint
	if raw := ctx.QueryParam("owner_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(ctx, "Invalid owner_id")
		}
		owner = uint(v)
	}
	items, err := c.deps.Actions.List(ctx.Request().Context(), owner)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list actions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"actions": items, "count": len(items)})
}

// CreateAction stores a named notification target.
func (c *Controller) CreateAction(ctx echo.Context) error {
	if c.deps.Actions == nil {
		return serviceUnavailable(ctx, "action store")
	}
	var req ActionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if err := c.validateAction(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid action", http.StatusBadRequest)
	}

	action := entities.AlertAction{OwnerID: req.OwnerID, Name: req.Name, Type: req.Type, Value: req.Value}
	if err := c.deps.Actions.Create(ctx.Request().Context(), &action); err != nil {
		if errors.Is(err, repository.ErrActionNameTaken) {
			return c.HandleError(ctx, err, "Action name already exists", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to create action", http.StatusInternalServerError)
	}
	c.invalidateAction(action.Name)
	return ctx.JSON(http.StatusCreated, action)
}

// UpdateAction replaces an action.
func (c *Controller) UpdateAction(ctx echo.Context) error {
	if c.deps.Actions == nil {
		return serviceUnavailable(ctx, "action store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid action ID")
	}
	var req ActionRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if err := c.validateAction(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid action", http.StatusBadRequest)
	}

	action := entities.AlertAction{ID: id, OwnerID: req.OwnerID, Name: req.Name, Type: req.Type, Value: req.Value}
	if err := c.deps.Actions.Update(ctx.Request().Context(), &action); err != nil {
		if errors.Is(err, repository.ErrActionNameTaken) {
			return c.HandleError(ctx, err, "Action name already exists", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to update action", http.StatusInternalServerError)
	}
	c.invalidateAction(action.Name)
	return ctx.JSON(http.StatusOK, action)
}

// DeleteAction removes an action. Alerts that still reference it fail to
// dispatch with a configuration error.
func (c *Controller) DeleteAction(ctx echo.Context) error {
	if c.deps.Actions == nil {
		return serviceUnavailable(ctx, "action store")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid action ID")
	}
	if err := c.deps.Actions.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			return notFound(ctx, "Action not found")
		}
		return c.HandleError(ctx, err, "Failed to delete action", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) invalidateAction(name string) {
	if c.deps.ActionCache != nil {
		c.deps.ActionCache.Invalidate(name)
	}
}
