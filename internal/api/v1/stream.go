package api

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/stream"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Non-browser clients omit Origin. Browsers must come from this host.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// StreamAlerts upgrades to a websocket and pushes alerts as they are
// dispatched. owner_id restricts the stream to one owner.
func (c *Controller) StreamAlerts(ctx echo.Context) error {
	if c.deps.Stream == nil {
		return serviceUnavailable(ctx, "alert stream")
	}
	ownerID, err := queryInt64(ctx, "owner_id", 0)
	if err != nil || ownerID < 0 {
		return badRequest(ctx, "Invalid owner_id")
	}

	conn, err := streamUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		c.log.Debug("alert stream upgrade failed", logger.Error(err))
		return nil
	}
	stream.NewClient(c.deps.Stream, conn, ownerID).Serve()
	return nil
}
