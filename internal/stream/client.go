package stream

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/metrink/metrink-go/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one websocket connection subscribed to the hub. An ownerID of
// zero receives alerts of every owner.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	ownerID int64
	remote  string
}

// NewClient wraps conn. Call Serve to register and pump it.
func NewClient(hub *Hub, conn *websocket.Conn, ownerID int64) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		ownerID: ownerID,
		remote:  conn.RemoteAddr().String(),
	}
}

func (c *Client) wants(ownerID int64) bool {
	return c.ownerID == 0 || c.ownerID == ownerID
}

// Serve registers the client and blocks until the connection closes.
func (c *Client) Serve() {
	if !c.hub.Register(c) {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// readPump discards client frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("stream client read failed",
					logger.String("remote", c.remote),
					logger.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
