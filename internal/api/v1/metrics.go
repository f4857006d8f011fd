package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"

	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

const (
	// defaultMaxBodyBytes caps an ingest body when no limit is configured.
	defaultMaxBodyBytes = 8 << 20
	// maxRejectedReported caps the per-item errors echoed back.
	maxRejectedReported = 20
	maxCatalogLimit     = 1000
)

// IngestResponse summarizes one ingest request.
type IngestResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Fired    int      `json:"fired"`
	Errors   []string `json:"errors,omitempty"`
}

func (c *Controller) initMetricRoutes() {
	c.Group.POST("/metrics", c.IngestMetrics)
	c.Group.GET("/metrics/catalog", c.ListCatalog)
	c.Group.GET("/metrics/range", c.ReadRange)
}

// IngestMetrics parses a payload, queues accepted samples for aggregation
// and evaluates them against live alerts. Malformed items are skipped.
func (c *Controller) IngestMetrics(ctx echo.Context) error {
	if c.deps.Buffer == nil {
		return serviceUnavailable(ctx, "ingest")
	}
	limit := c.deps.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, limit+1))
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge {
			return payloadTooLarge(ctx, limit)
		}
		return badRequest(ctx, "Failed to read request body")
	}
	if int64(len(body)) > limit {
		return payloadTooLarge(ctx, limit)
	}

	batch, err := metric.ParsePayload(body, c.now())
	if err != nil {
		c.deps.Metrics.RecordIngested("http", 0, 1)
		return c.HandleError(ctx, err, "Invalid metric payload", http.StatusBadRequest)
	}

	resp := IngestResponse{Accepted: len(batch.Samples), Rejected: len(batch.Rejected)}
	for i, rejected := range batch.Rejected {
		if i == maxRejectedReported {
			break
		}
		resp.Errors = append(resp.Errors, rejected.Error())
	}

	if len(batch.Samples) > 0 {
		c.deps.Buffer.Enqueue(batch.Samples)
		if c.deps.Engine != nil {
			resp.Fired = c.deps.Engine.ProcessSamples(batch.Samples)
		}
	}
	c.deps.Metrics.RecordIngested("http", resp.Accepted, resp.Rejected)

	return ctx.JSON(http.StatusAccepted, resp)
}

func payloadTooLarge(ctx echo.Context, limit int64) error {
	return ctx.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:  "Payload too large",
		Detail: "limit is " + bytes.Format(limit),
	})
}

// ListCatalog lists known metric identities, optionally filtered by device
// and group.
func (c *Controller) ListCatalog(ctx echo.Context) error {
	if c.deps.Catalog == nil {
		return serviceUnavailable(ctx, "catalog")
	}
	limit, err := queryInt(ctx, "limit", 100)
	if err != nil || limit <= 0 {
		return badRequest(ctx, "Invalid limit")
	}
	limit = min(limit, maxCatalogLimit)

	items, err := c.deps.Catalog.ListIdentities(ctx.Request().Context(), repository.CatalogFilter{
		Device: ctx.QueryParam("device"),
		Group:  ctx.QueryParam("group"),
		Limit:  limit,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list metrics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"metrics": items,
		"count":   len(items),
	})
}

// ReadRange returns the stored minute samples of one series in [start, end).
func (c *Controller) ReadRange(ctx echo.Context) error {
	if c.deps.Samples == nil {
		return serviceUnavailable(ctx, "sample store")
	}
	id, err := metric.NewIdentity(ctx.QueryParam("device"), ctx.QueryParam("group"), ctx.QueryParam("name"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid metric identity", http.StatusBadRequest)
	}
	end, err := queryInt64(ctx, "end", c.now().UnixMilli())
	if err != nil {
		return badRequest(ctx, "Invalid end")
	}
	start, err := queryInt64(ctx, "start", end-metric.BucketWidthMs*60)
	if err != nil || start > end {
		return badRequest(ctx, "Invalid start")
	}

	samples, err := c.deps.Samples.ReadRange(ctx.Request().Context(), id, start, end)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read samples", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"identity": id,
		"start":    start,
		"end":      end,
		"samples":  samples,
	})
}
