package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/forecast"
	"github.com/metrink/metrink-go/internal/metric"
)

const maxForecastHorizon = 10080

// ForecastRequest selects a series either inline or by identity and range.
// A zero Period is detected from the series spectrum.
type ForecastRequest struct {
	Values  []float64 `json:"values,omitempty"`
	Device  string    `json:"device,omitempty"`
	Group   string    `json:"group,omitempty"`
	Name    string    `json:"name,omitempty"`
	Start   int64     `json:"start,omitempty"`
	End     int64     `json:"end,omitempty"`
	Period  int       `json:"period,omitempty"`
	Horizon int       `json:"horizon,omitempty"`
}

func (c *Controller) initForecastRoutes() {
	c.Group.POST("/forecast", c.Forecast)
}

// Forecast fits a triple exponential model and projects it Horizon steps.
func (c *Controller) Forecast(ctx echo.Context) error {
	var req ForecastRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if req.Horizon <= 0 {
		req.Horizon = 1
	}
	if req.Horizon > maxForecastHorizon || req.Period < 0 {
		return badRequest(ctx, "Invalid horizon or period")
	}

	series, err := c.forecastSeries(ctx.Request().Context(), &req)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load series", statusFor(err))
	}

	resp, err := forecast.Project(series, req.Period, req.Horizon)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to forecast", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) forecastSeries(ctx context.Context, req *ForecastRequest) ([]float64, error) {
	if len(req.Values) > 0 {
		return req.Values, nil
	}
	if c.deps.Samples == nil {
		return nil, errors.Newf("sample store is not available").
			Component("api").
			Category(errors.CategoryStorage).
			Build()
	}
	id, err := metric.NewIdentity(req.Device, req.Group, req.Name)
	if err != nil {
		return nil, err
	}
	end := req.End
	if end == 0 {
		end = c.now().UnixMilli()
	}
	start := req.Start
	if start == 0 {
		period := req.Period
		if period == 0 {
			period = c.deps.ForecastPeriod
		}
		start = end - int64(2*period)*metric.BucketWidthMs
	}
	samples, err := c.deps.Samples.ReadRange(ctx, id, start, end)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values, nil
}
