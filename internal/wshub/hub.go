// Package wshub bridges the monitor's live event topics to websocket
// subscribers (dashboards, the mobile UI). Every message is a JSON envelope
// {"type": ..., "payload": ...} on one of three types: device-status-update,
// sensor-data, alert-triggered.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/srg/mguard/internal/monitor"
)

// Envelope is the wire frame sent to every websocket client.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	TypeDeviceStatus = "device-status-update"
	TypeSensorData   = "sensor-data"
	TypeAlert        = "alert-triggered"
)

// Hub fans live events out to connected websocket clients. A client that
// cannot keep up is dropped rather than allowed to stall the broadcast.
type Hub struct {
	manager *monitor.Manager
	logger  *logrus.Logger

	mu      sync.Mutex
	clients map[*client]bool

	upgrader websocket.Upgrader
}

// New creates a hub bridging the manager's topics.
func New(manager *monitor.Manager, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		manager: manager,
		logger:  logger,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run subscribes to the live topics and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events := h.manager.Events()
	statusSub := h.manager.Registry().Subscribe()
	dataSub := events.SensorData.Subscribe(0)
	alertSub := events.Alerts.Subscribe(0)
	defer statusSub.Cancel()
	defer dataSub.Cancel()
	defer alertSub.Cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case st := <-statusSub.C():
			h.broadcast(Envelope{Type: TypeDeviceStatus, Payload: st})
		case ev := <-dataSub.C():
			h.broadcast(Envelope{Type: TypeSensorData, Payload: ev})
		case alert := <-alertSub.C():
			h.broadcast(Envelope{Type: TypeAlert, Payload: alert})
		}
	}
}

// ServeHTTP upgrades the request and attaches the client. New clients get
// the full device status snapshot first, so no status is invisible to a late
// joiner.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 64)}

	for _, st := range h.manager.Registry().Snapshot() {
		if data, err := json.Marshal(Envelope{Type: TypeDeviceStatus, Payload: st}); err == nil {
			c.send <- data
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Info("Websocket client connected")

	go c.writePump()
	go c.readPump()
}

func (h *Hub) broadcast(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client: drop it rather than block the broadcast.
			h.dropLocked(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
