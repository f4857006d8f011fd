// Package stream pushes fired alerts to websocket clients as they are
// dispatched.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

// Message is the JSON frame sent to stream clients.
type Message struct {
	Type      string     `json:"type"`
	Data      AlertEvent `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
}

// AlertEvent describes one fired alert.
type AlertEvent struct {
	JobID      string          `json:"job_id"`
	AlertID    int64           `json:"alert_id"`
	OwnerID    int64           `json:"owner_id"`
	Definition string          `json:"definition"`
	Action     string          `json:"action"`
	Identity   metric.Identity `json:"identity"`
	Value      float64         `json:"value"`
	SampleTime int64           `json:"sample_time"`
	FiredAt    time.Time       `json:"fired_at"`
}

// Hub fans fired alerts out to connected clients. Publishing never blocks:
// a client whose send buffer is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	log     logger.Logger
	metrics *observability.Metrics
}

// NewHub creates an empty hub.
func NewHub(log logger.Logger, metrics *observability.Metrics) *Hub {
	if log == nil {
		log = logger.Global()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log.Module("stream"),
		metrics: metrics,
	}
}

// AlertFired implements alerting.FiredListener.
func (h *Hub) AlertFired(job alerting.DispatchJob) {
	def := job.Definition
	h.Publish(AlertEvent{
		JobID:      job.ID,
		AlertID:    def.AlertID,
		OwnerID:    def.OwnerID,
		Definition: def.Text,
		Action:     def.ActionName,
		Identity:   job.Sample.Identity,
		Value:      job.Sample.Value,
		SampleTime: job.Sample.Timestamp,
		FiredAt:    job.FiredAt,
	})
}

// Publish sends ev to every client subscribed to its owner.
func (h *Hub) Publish(ev AlertEvent) {
	payload, err := json.Marshal(Message{Type: "alert", Data: ev, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Error("failed to encode alert event", logger.Int64("alert_id", ev.AlertID), logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev.OwnerID) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.Warn("stream client too slow, disconnecting", logger.String("remote", c.remote))
			h.dropLocked(c)
		}
	}
}

// Register adds c. It reports false once the hub is closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.send)
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.SetStreamClients(len(h.clients))
	h.log.Debug("stream client connected",
		logger.String("remote", c.remote),
		logger.Int64("owner_id", c.ownerID))
	return true
}

// Unregister removes c and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.SetStreamClients(len(h.clients))
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
